package memory

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
)

// Backend keeps mappings in process memory.
// Used in tests and for single-process setups where losing state on restart is fine.
type Backend struct {
	mu      sync.RWMutex
	aliases map[string]domain.MappingEntry // alias -> entry
	state   *domain.ServiceState           // nil until first SetServiceState
}

// New creates an empty memory backend
func New() *Backend {
	return &Backend{
		aliases: make(map[string]domain.MappingEntry),
	}
}

// Get retrieves an entry by alias
func (b *Backend) Get(_ context.Context, alias string) (domain.MappingEntry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.aliases[alias]
	return entry, ok, nil
}

// List returns all entries, oldest first
func (b *Backend) List(_ context.Context) ([]domain.MappingEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]domain.MappingEntry, 0, len(b.aliases))
	for _, entry := range b.aliases {
		entries = append(entries, entry)
	}
	domain.SortEntries(entries)
	return entries, nil
}

// Put adds or replaces a single entry
func (b *Backend) Put(_ context.Context, entry domain.MappingEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.aliases[entry.Alias] = entry
	return nil
}

// DeleteTenant removes all aliases of a tenant
func (b *Backend) DeleteTenant(_ context.Context, tenantID int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for alias, entry := range b.aliases {
		if entry.TenantID == tenantID {
			delete(b.aliases, alias)
			removed++
		}
	}
	return removed, nil
}

// ServiceState returns the stored state
func (b *Backend) ServiceState(_ context.Context) (domain.ServiceState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == nil {
		return domain.DefaultServiceState(), nil
	}
	return *b.state, nil
}

// SetServiceState replaces the stored state
func (b *Backend) SetServiceState(_ context.Context, state domain.ServiceState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = &state
	return nil
}

// Ping always succeeds
func (b *Backend) Ping(context.Context) error { return nil }

// Count returns the number of aliases
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.aliases)
}
