package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "telerelay/pkg/logx"
)

// Store is the durable tenant mapping behind the relay and the command surface.
//
// Update runs fn inside the store's critical section so a read-modify-write
// (discovery appends, subscription toggles) can never lose a concurrent link or
// unlink. Implementations persist the mutated record before returning.
type Store interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Create(ctx context.Context, t *Tenant) error
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, fn func(*Tenant) error) error
	Close() error
}

// Config configures the tenant store.
//
// Driver values:
//   - "file" (default): one JSON document keyed by tenant id
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
