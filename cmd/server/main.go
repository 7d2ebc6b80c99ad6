package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberfall-mud/emberfall/pkg/game"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confPath := flag.String("conf", envDefault("EMBERFALL_CONF", "emberfall.yaml"), "Path to config file (env: EMBERFALL_CONF)")
	contentDir := flag.String("content", envDefault("EMBERFALL_CONTENT", ""), "Content directory override (env: EMBERFALL_CONTENT)")
	dataDir := flag.String("data", envDefault("EMBERFALL_DATA", ""), "Data directory override (env: EMBERFALL_DATA)")
	listenAddr := flag.String("listen", envDefault("EMBERFALL_LISTEN", ""), "Metrics listen address override (env: EMBERFALL_LISTEN)")
	watch := flag.Bool("watch", os.Getenv("EMBERFALL_WATCH") == "true", "Hot-reload content files on change (env: EMBERFALL_WATCH)")
	flag.Parse()

	cfg, err := game.LoadConfig(*confPath)
	if err != nil {
		log.Fatalf("MAIN: %v", err)
	}
	if *contentDir != "" {
		cfg.ContentDir = *contentDir
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *watch {
		cfg.WatchContent = true
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("MAIN: creating data dir: %v", err)
	}

	g, err := game.New(cfg)
	if err != nil {
		log.Fatalf("MAIN: %v", err)
	}
	if err := g.Start(); err != nil {
		log.Fatalf("MAIN: %v", err)
	}
	log.Printf("MAIN: engine up, content from %s, data in %s", cfg.ContentDir, cfg.DataDir)

	mux := http.NewServeMux()
	mux.Handle("/metrics", g.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("MAIN: metrics listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("MAIN: metrics server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Printf("MAIN: received %s, shutting down", s)
	srv.Close()
	g.Shutdown()
	log.Printf("MAIN: goodbye")
}
