package game

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emberfall-mud/emberfall/pkg/sched"
)

// Config is the server configuration, loaded from a YAML file with every
// field optional.
type Config struct {
	ContentDir string `yaml:"content_dir"`
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`

	// Role hierarchy, lowest to highest. Empty uses the default four.
	Roles []string `yaml:"roles"`

	// Room new characters start in. Empty picks the first room key.
	DefaultRoom string `yaml:"default_room"`

	TickSeconds     int  `yaml:"tick_seconds"`
	DueCheckSeconds int  `yaml:"due_check_seconds"`
	ReloadMinutes   int  `yaml:"reload_minutes"`
	JanitorSeconds  int  `yaml:"janitor_seconds"`
	WatchContent    bool `yaml:"watch_content"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ContentDir:      "content",
		DataDir:         "data",
		ListenAddr:      ":9730",
		TickSeconds:     3,
		DueCheckSeconds: 60,
		ReloadMinutes:   5,
		JanitorSeconds:  60,
	}
}

// LoadConfig reads a config file over the defaults. A missing file is not an
// error; the defaults stand.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) WorldDBPath() string     { return filepath.Join(c.DataDir, "world.db") }
func (c Config) TransientDBPath() string { return filepath.Join(c.DataDir, "transient.db") }

func (c Config) JanitorInterval() time.Duration {
	if c.JanitorSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.JanitorSeconds) * time.Second
}

func (c Config) schedConfig() sched.Config {
	return sched.Config{
		TickInterval:     time.Duration(c.TickSeconds) * time.Second,
		DueCheckInterval: time.Duration(c.DueCheckSeconds) * time.Second,
		ReloadInterval:   time.Duration(c.ReloadMinutes) * time.Minute,
	}
}
