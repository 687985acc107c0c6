package domain

import (
	"sort"
	"time"
)

// DefaultDisabledMessage is shown to alias visitors while the service is disabled.
const DefaultDisabledMessage = "This Onion Service is temporarily disabled."

// MappingEntry routes one host alias to one tenant.
//
// Alias is unique across all entries: it is the lookup key at request time.
// TenantID is not unique, a tenant may own several aliases.
type MappingEntry struct {
	// Alias is the normalized alternate host name.
	// Example: 2gzyxa5ihm7nsggfxnu52rck2vv4rvmdlkiu3zzui5du4xyclen53wid.onion
	Alias string `json:"alias"`

	// TenantID identifies the site inside the multi-tenant platform (>= 1).
	TenantID int64 `json:"tenant_id"`

	// CreatedAt is when the alias was first saved. It drives list order.
	CreatedAt time.Time `json:"created_at"`
}

// ServiceState is the global switch applied to every mapped alias.
type ServiceState struct {
	Disabled        bool   `json:"disabled"`
	DisabledMessage string `json:"disabled_message"`
}

// DefaultServiceState is the state of a fresh install.
func DefaultServiceState() ServiceState {
	return ServiceState{DisabledMessage: DefaultDisabledMessage}
}

// SortEntries orders entries by CreatedAt, then Alias.
func SortEntries(entries []MappingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Alias < entries[j].Alias
	})
}
