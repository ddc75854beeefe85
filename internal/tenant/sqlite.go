package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	logx "telerelay/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id         TEXT PRIMARY KEY,
	credential TEXT NOT NULL,
	target     TEXT NOT NULL,
	known      TEXT NOT NULL DEFAULT '[]',
	subscribed TEXT NOT NULL DEFAULT '[]'
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	// modernc sqlite prefers a single writer; serialize read-modify-write so
	// Update keeps its critical-section contract.
	mu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanTenant(id, credential, target, known, subscribed string) (*Tenant, error) {
	t := &Tenant{ID: id, Credential: credential, Target: target}
	if err := json.Unmarshal([]byte(known), &t.KnownChats); err != nil {
		return nil, fmt.Errorf("tenant %s: known chats: %w", id, err)
	}
	if err := json.Unmarshal([]byte(subscribed), &t.SubscribedChats); err != nil {
		return nil, fmt.Errorf("tenant %s: subscribed chats: %w", id, err)
	}
	return t, nil
}

func chatsJSON(chats []string) string {
	if chats == nil {
		chats = []string{}
	}
	b, _ := json.Marshal(chats)
	return string(b)
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*Tenant, error) {
	var credential, target, known, subscribed string
	err := s.db.QueryRowContext(ctx,
		`SELECT credential, target, known, subscribed FROM tenants WHERE id = ?`, id,
	).Scan(&credential, &target, &known, &subscribed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return scanTenant(id, credential, target, known, subscribed)
}

func (s *sqliteStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, credential, target, known, subscribed FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		var id, credential, target, known, subscribed string
		if err := rows.Scan(&id, &credential, &target, &known, &subscribed); err != nil {
			return nil, err
		}
		t, err := scanTenant(id, credential, target, known, subscribed)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Create(ctx context.Context, t *Tenant) error {
	if t == nil {
		return errors.New("nil tenant")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants(id, credential, target, known, subscribed)
		 VALUES(?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Credential, t.Target, chatsJSON(t.KnownChats), chatsJSON(t.SubscribedChats),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Update(ctx context.Context, id string, fn func(*Tenant) error) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tenants SET credential=?, target=?, known=?, subscribed=? WHERE id=?`,
		t.Credential, t.Target, chatsJSON(t.KnownChats), chatsJSON(t.SubscribedChats), id,
	)
	return err
}
