package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "telerelay/pkg/logx"
)

// fileStore keeps all tenants in one JSON document, written back whole after
// every mutation (same shape as the original config.json: tenant id → record).
// The document is created on first run when absent.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	tenants map[string]*Tenant
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, tenants: map[string]*Tenant{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		// First run: start empty and materialize the document.
		return s.flushLocked()
	}
	if err != nil {
		return err
	}
	var doc map[string]*Tenant
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for id, t := range doc {
		if t == nil {
			continue
		}
		t.ID = id
		s.tenants[id] = t
	}
	return nil
}

// flushLocked writes the whole document atomically (tmp + rename).
// Callers hold s.mu (or run before the store is shared).
func (s *fileStore) flushLocked() error {
	doc := make(map[string]*Tenant, len(s.tenants))
	for id, t := range s.tenants {
		doc[id] = t
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Get(ctx context.Context, id string) (*Tenant, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *fileStore) List(ctx context.Context) ([]*Tenant, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) Create(ctx context.Context, t *Tenant) error {
	_ = ctx
	if t == nil {
		return errors.New("nil tenant")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return ErrExists
	}
	s.tenants[t.ID] = t.Clone()
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, id)
	return s.flushLocked()
}

func (s *fileStore) Update(ctx context.Context, id string, fn func(*Tenant) error) error {
	_ = ctx
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	cp := t.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	s.tenants[id] = cp
	return s.flushLocked()
}
