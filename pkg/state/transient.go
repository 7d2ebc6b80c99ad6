package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

// Transient is the expiring key/value tier, used by scripts for cooldowns
// and other time-limited values. Keys are namespaced kind:id:key so entities
// never collide. Values must be JSON-serializable; passing one that is not
// is a caller error. Expiry is precise: an expired key reads as absent even
// before it is physically evicted.
type Transient struct {
	mu   sync.Mutex
	db   *sql.DB
	path string

	now func() time.Time // test hook
}

// OpenTransient opens (or creates) the sqlite-backed transient store.
// Pass ":memory:" for an ephemeral store.
func OpenTransient(path string) (*Transient, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open transient %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS transient (
		k          TEXT PRIMARY KEY,
		v          TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: creating transient table: %w", err)
	}
	return &Transient{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database.
func (t *Transient) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

func nsKey(ref world.Ref, key string) string {
	return ref.String() + ":" + key
}

// Set stores a value. A positive ttl causes automatic expiry; zero means the
// value persists until deleted or evicted.
func (t *Transient) Set(ref world.Ref, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: value for %s/%s is not serializable: %w", ref, key, err)
	}
	var expires int64
	if ttl > 0 {
		expires = t.now().Add(ttl).UnixNano()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.db.Exec(
		`INSERT INTO transient (k, v, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at`,
		nsKey(ref, key), string(data), expires)
	return err
}

// Get returns the decoded value and whether a live (unexpired) entry exists.
func (t *Transient) Get(ref world.Ref, key string) (any, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, expires, ok, err := t.fetch(nsKey(ref, key))
	if err != nil || !ok {
		return nil, false, err
	}
	if expired(expires, t.now()) {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("state: decode %s/%s: %w", ref, key, err)
	}
	return v, true, nil
}

// Exists reports whether a live entry exists; expiry is honored exactly.
func (t *Transient) Exists(ref world.Ref, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, expires, ok, err := t.fetch(nsKey(ref, key))
	if err != nil || !ok {
		return false, err
	}
	return !expired(expires, t.now()), nil
}

// Delete removes an entry.
func (t *Transient) Delete(ref world.Ref, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.db.Exec(`DELETE FROM transient WHERE k = ?`, nsKey(ref, key))
	return err
}

// TTL returns the remaining lifetime of an entry. ok is false when the entry
// is absent or expired; a zero duration with ok true means no expiry is set.
func (t *Transient) TTL(ref world.Ref, key string) (time.Duration, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, expires, ok, err := t.fetch(nsKey(ref, key))
	if err != nil || !ok {
		return 0, false, err
	}
	if expires == 0 {
		return 0, true, nil
	}
	now := t.now()
	if expired(expires, now) {
		return 0, false, nil
	}
	return time.Duration(expires - now.UnixNano()), true, nil
}

// fetch reads one row; callers hold the mutex.
func (t *Transient) fetch(key string) (raw string, expires int64, ok bool, err error) {
	row := t.db.QueryRow(`SELECT v, expires_at FROM transient WHERE k = ?`, key)
	switch err := row.Scan(&raw, &expires); err {
	case nil:
		return raw, expires, true, nil
	case sql.ErrNoRows:
		return "", 0, false, nil
	default:
		return "", 0, false, err
	}
}

func expired(expires int64, now time.Time) bool {
	return expires != 0 && expires <= now.UnixNano()
}

const cooldownPrefix = "cooldown:"

// SetCooldown starts a named cooldown on an entity for the given duration.
func (t *Transient) SetCooldown(ref world.Ref, name string, d time.Duration) error {
	return t.Set(ref, cooldownPrefix+name, true, d)
}

// AcquireCooldown is the conditional form: it starts the cooldown only when
// no live cooldown exists, in a single statement, and reports whether it was
// acquired. Use this instead of IsOnCooldown-then-SetCooldown when
// exactly-once semantics matter.
func (t *Transient) AcquireCooldown(ref world.Ref, name string, d time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	res, err := t.db.Exec(
		`INSERT INTO transient (k, v, expires_at) VALUES (?, 'true', ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at
		 WHERE transient.expires_at != 0 AND transient.expires_at <= ?`,
		nsKey(ref, cooldownPrefix+name), now.Add(d).UnixNano(), now.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsOnCooldown reports whether a named cooldown is still running.
func (t *Transient) IsOnCooldown(ref world.Ref, name string) (bool, error) {
	return t.Exists(ref, cooldownPrefix+name)
}

// Remaining returns the time left on a cooldown; ok is false once it has
// elapsed or was never set.
func (t *Transient) Remaining(ref world.Ref, name string) (time.Duration, bool, error) {
	return t.TTL(ref, cooldownPrefix+name)
}

// Evict physically removes expired rows and returns how many were deleted.
func (t *Transient) Evict() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	res, err := t.db.Exec(`DELETE FROM transient WHERE expires_at != 0 AND expires_at <= ?`,
		t.now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// StartJanitor evicts expired rows on an interval until the returned stop
// function is called.
func (t *Transient) StartJanitor(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n, err := t.Evict(); err != nil {
					log.Printf("STATE: transient eviction: %v", err)
				} else if n > 0 {
					log.Printf("STATE: evicted %d expired transient entries", n)
				}
			}
		}
	}()
	return func() { close(done) }
}
