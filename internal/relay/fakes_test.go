package relay

import (
	"context"
	"errors"
	"sync"

	"telerelay/internal/tenant"
)

// memStore is an in-memory tenant.Store for router/engine tests.
type memStore struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
	updates int
}

func newMemStore(ts ...*tenant.Tenant) *memStore {
	s := &memStore{tenants: map[string]*tenant.Tenant{}}
	for _, t := range ts {
		s.tenants[t.ID] = t.Clone()
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *memStore) List(context.Context) ([]*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return tenant.ErrExists
	}
	s.tenants[t.ID] = t.Clone()
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return tenant.ErrNotFound
	}
	delete(s.tenants, id)
	return nil
}

func (s *memStore) Update(_ context.Context, id string, fn func(*tenant.Tenant) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return tenant.ErrNotFound
	}
	cp := t.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	s.tenants[id] = cp
	s.updates++
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type sentMessage struct {
	Target string
	Text   string
}

// captureSender records every Send and can fail selected targets.
type captureSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failed map[string]bool
}

func newCaptureSender() *captureSender {
	return &captureSender{failed: map[string]bool{}}
}

func (s *captureSender) failTarget(target string) {
	s.mu.Lock()
	s.failed[target] = true
	s.mu.Unlock()
}

func (s *captureSender) Send(_ context.Context, targetID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed[targetID] {
		return errors.New("delivery refused")
	}
	s.sent = append(s.sent, sentMessage{Target: targetID, Text: text})
	return nil
}

func (s *captureSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// scriptPoller serves canned batches (or errors) per credential and counts
// Fetch calls.
type scriptPoller struct {
	mu      sync.Mutex
	batches map[string][]RawUpdate
	highs   map[string]int64
	errs    map[string]error
	fetches map[string]int
	cursors map[string]int64
}

func newScriptPoller() *scriptPoller {
	return &scriptPoller{
		batches: map[string][]RawUpdate{},
		highs:   map[string]int64{},
		errs:    map[string]error{},
		fetches: map[string]int{},
		cursors: map[string]int64{},
	}
}

func (p *scriptPoller) serve(cred string, highest int64, batch ...RawUpdate) {
	p.mu.Lock()
	p.batches[cred] = batch
	p.highs[cred] = highest
	delete(p.errs, cred)
	p.mu.Unlock()
}

func (p *scriptPoller) fail(cred string, err error) {
	p.mu.Lock()
	p.errs[cred] = err
	p.mu.Unlock()
}

func (p *scriptPoller) Fetch(_ context.Context, credential string, cursor int64) ([]RawUpdate, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches[credential]++
	p.cursors[credential] = cursor
	if err := p.errs[credential]; err != nil {
		return nil, 0, err
	}
	return p.batches[credential], p.highs[credential], nil
}

func (p *scriptPoller) fetchCount(cred string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[cred]
}

func (p *scriptPoller) lastCursor(cred string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursors[cred]
}
