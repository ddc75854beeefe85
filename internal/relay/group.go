package relay

import (
	"sort"
	"strings"

	"telerelay/internal/tenant"
)

// GroupByCredential partitions tenants by shared source credential so each
// unique credential is polled exactly once per cycle regardless of how many
// tenants reference it. Tenant ids within a group are sorted; membership is
// recomputed every cycle, so links and unlinks take effect next cycle without
// a restart.
func GroupByCredential(tenants []*tenant.Tenant) map[string][]string {
	groups := make(map[string][]string)
	for _, t := range tenants {
		if t == nil {
			continue
		}
		cred := strings.TrimSpace(t.Credential)
		if cred == "" || strings.TrimSpace(t.ID) == "" {
			continue
		}
		groups[cred] = append(groups[cred], t.ID)
	}
	for cred := range groups {
		sort.Strings(groups[cred])
	}
	return groups
}
