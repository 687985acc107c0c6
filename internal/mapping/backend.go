package mapping

import (
	"context"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
)

// Backend is the durable storage behind a Store.
//
// Implementations only persist; validation, uniqueness and snapshot
// publishing are handled by Store.
type Backend interface {
	// Get returns the entry for an alias. found is false when absent.
	Get(ctx context.Context, alias string) (entry domain.MappingEntry, found bool, err error)

	// List returns all entries ordered by CreatedAt, then Alias.
	List(ctx context.Context) ([]domain.MappingEntry, error)

	// Put inserts or replaces the entry keyed by entry.Alias.
	Put(ctx context.Context, entry domain.MappingEntry) error

	// DeleteTenant removes every alias of a tenant and returns how many were removed.
	DeleteTenant(ctx context.Context, tenantID int64) (int, error)

	// ServiceState returns the stored state, or domain.DefaultServiceState() if never set.
	ServiceState(ctx context.Context) (domain.ServiceState, error)

	SetServiceState(ctx context.Context, state domain.ServiceState) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Publisher receives the full state after every mutation.
// snapshot.Writer satisfies it.
type Publisher interface {
	Write(entries []domain.MappingEntry, state domain.ServiceState) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(entries []domain.MappingEntry, state domain.ServiceState) error

func (f PublisherFunc) Write(entries []domain.MappingEntry, state domain.ServiceState) error {
	return f(entries, state)
}
