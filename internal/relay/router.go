package relay

import (
	"context"
	"sort"

	"telerelay/internal/metrics"
	"telerelay/internal/tenant"
	logx "telerelay/pkg/logx"
)

// Router resolves interest per cycle: for each canonical message and each
// tenant sharing the credential, it either delivers (subscribed chat) or
// records a discovery (chat not yet known). Discoveries are persisted once per
// tenant per cycle to bound write amplification.
type Router struct {
	store tenant.Store
	send  Sender
	log   logx.Logger
}

func NewRouter(store tenant.Store, send Sender, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{store: store, send: send, log: log}
}

// Route processes one credential's batch. Delivery failures are per-tenant and
// never block other tenants or the rest of the batch; message order within the
// batch is preserved per tenant.
func (r *Router) Route(ctx context.Context, credential string, msgs []CanonicalMessage, tenantIDs []string) {
	if len(msgs) == 0 || len(tenantIDs) == 0 {
		return
	}

	// Snapshot each tenant once: subscription membership is evaluated as of
	// routing time, and repeated titles within one batch discover only once.
	snaps := make(map[string]*tenant.Tenant, len(tenantIDs))
	for _, id := range tenantIDs {
		t, err := r.store.Get(ctx, id)
		if err != nil {
			r.log.Warn("tenant load failed, skipping for this cycle", logx.String("tenant", id), logx.Err(err))
			continue
		}
		snaps[id] = t
	}

	dirty := map[string]bool{}
	for i := range msgs {
		m := &msgs[i]
		for _, id := range tenantIDs {
			t := snaps[id]
			if t == nil {
				continue
			}
			switch {
			case t.IsSubscribed(m.ChatTitle):
				if err := r.send.Send(ctx, t.Target, m.Render()); err != nil {
					metrics.DeliveryFailures.Inc()
					r.log.Warn("delivery failed",
						logx.String("tenant", id),
						logx.String("chat", m.ChatTitle),
						logx.Err(err),
					)
					continue
				}
				metrics.MessagesDelivered.Inc()
			case t.AddKnown(m.ChatTitle):
				metrics.ChatsDiscovered.Inc()
				dirty[id] = true
			}
		}
	}

	r.persistDiscoveries(ctx, credential, snaps, dirty)
}

// persistDiscoveries writes each dirty tenant back exactly once. The store's
// Update critical section merges against concurrent link/unlink and
// subscription commands instead of overwriting them.
func (r *Router) persistDiscoveries(ctx context.Context, credential string, snaps map[string]*tenant.Tenant, dirty map[string]bool) {
	ids := make([]string, 0, len(dirty))
	for id := range dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		known := snaps[id].KnownChats
		err := r.store.Update(ctx, id, func(cur *tenant.Tenant) error {
			for _, title := range known {
				cur.AddKnown(title)
			}
			return nil
		})
		if err != nil {
			// The discovery recurs next time the chat posts; losing the write
			// is recoverable, losing a delivered message is not.
			r.log.Warn("discovery persist failed",
				logx.String("tenant", id),
				logx.Err(err),
			)
		}
	}
}
