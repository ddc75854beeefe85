package relay

import "sync"

// Offsets tracks the last acknowledged read position per credential.
//
// Cursors are created lazily on first poll and advanced only after a batch has
// been fully handed to the router. They live in memory only: on restart
// the upstream re-serves unacknowledged updates, trading occasional duplicate
// delivery for never losing a message.
type Offsets struct {
	mu   sync.Mutex
	last map[string]int64
}

func NewOffsets() *Offsets {
	return &Offsets{last: map[string]int64{}}
}

// Cursor returns the last acknowledged position for a credential (0 if the
// credential has never been polled).
func (o *Offsets) Cursor(credential string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[credential]
}

// Advance moves the cursor forward. A call with a lower or equal position is a
// no-op; cursors never roll back. It reports whether the cursor moved.
func (o *Offsets) Advance(credential string, highest int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if highest <= o.last[credential] {
		return false
	}
	o.last[credential] = highest
	return true
}

// Prune drops cursors for credentials no longer referenced by any tenant.
func (o *Offsets) Prune(active map[string][]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for cred := range o.last {
		if _, ok := active[cred]; !ok {
			delete(o.last, cred)
		}
	}
}
