package mapping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// SyncStatus describes the last snapshot publish attempt.
type SyncStatus struct {
	LastError    error
	LastSyncedAt time.Time
	LastTriedAt  time.Time
}

// InSync reports whether the last publish succeeded.
func (s SyncStatus) InSync() bool { return s.LastError == nil && !s.LastSyncedAt.IsZero() }

// Store owns the canonical host alias mapping and service state.
// Every mutation publishes a fresh snapshot before returning.
type Store struct {
	backend   Backend
	publisher Publisher
	aliases   *domain.AliasValidator
	logger    logger.Logger
	now       func() time.Time

	// mu serializes mutations so the published snapshot matches the write order.
	mu     sync.Mutex
	status SyncStatus
}

// NewStore creates a Store. publisher may be nil (no snapshot, tests only).
func NewStore(backend Backend, publisher Publisher, aliases *domain.AliasValidator, log logger.Logger) *Store {
	if aliases == nil {
		aliases = domain.NewAliasValidator(domain.OnionSuffix)
	}
	return &Store{
		backend:   backend,
		publisher: publisher,
		aliases:   aliases,
		logger:    log,
		now:       time.Now,
	}
}

// Aliases returns the validator used by Put.
func (s *Store) Aliases() *domain.AliasValidator { return s.aliases }

// Get returns the tenant mapped to alias.
func (s *Store) Get(ctx context.Context, alias string) (int64, bool, error) {
	entry, found, err := s.backend.Get(ctx, domain.NormalizeHost(alias))
	if err != nil {
		return 0, false, fmt.Errorf("failed to get mapping: %w", err)
	}
	return entry.TenantID, found, nil
}

// List returns every mapping in insertion order.
func (s *Store) List(ctx context.Context) ([]domain.MappingEntry, error) {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return entries, nil
}

// AliasFor returns the most recently saved alias of a tenant.
func (s *Store) AliasFor(ctx context.Context, tenantID int64) (string, bool, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].TenantID == tenantID {
			return entries[i].Alias, true, nil
		}
	}
	return "", false, nil
}

// Put maps alias to tenantID.
// Saving an existing pair again is a no-op apart from the snapshot refresh.
// An alias owned by another tenant is rejected with domain.ErrAliasTaken.
func (s *Store) Put(ctx context.Context, tenantID int64, alias string) error {
	if tenantID < 1 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidTenant, tenantID)
	}
	normalized, err := s.aliases.Normalize(alias)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.backend.Get(ctx, normalized)
	if err != nil {
		return fmt.Errorf("failed to check alias: %w", err)
	}
	if found && existing.TenantID != tenantID {
		return fmt.Errorf("%w: %s (tenant %d)", domain.ErrAliasTaken, normalized, existing.TenantID)
	}

	if !found {
		entry := domain.MappingEntry{
			Alias:     normalized,
			TenantID:  tenantID,
			CreatedAt: s.now().UTC(),
		}
		if err := s.backend.Put(ctx, entry); err != nil {
			return fmt.Errorf("failed to save mapping: %w", err)
		}
		s.logger.Info("mapping saved",
			logger.String("alias", normalized),
			logger.Int64("tenant_id", tenantID))
	}

	return s.publishLocked(ctx)
}

// Delete removes every alias of tenantID.
func (s *Store) Delete(ctx context.Context, tenantID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.backend.DeleteTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: tenant %d", domain.ErrNotFound, tenantID)
	}

	s.logger.Info("mapping deleted",
		logger.Int64("tenant_id", tenantID),
		logger.Int("aliases_removed", removed))

	return s.publishLocked(ctx)
}

// GetServiceState returns the global service switch.
func (s *Store) GetServiceState(ctx context.Context) (domain.ServiceState, error) {
	state, err := s.backend.ServiceState(ctx)
	if err != nil {
		return domain.ServiceState{}, fmt.Errorf("failed to get service state: %w", err)
	}
	return state, nil
}

// SetServiceState updates the global service switch.
func (s *Store) SetServiceState(ctx context.Context, disabled bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.ServiceState{Disabled: disabled, DisabledMessage: message}
	if err := s.backend.SetServiceState(ctx, state); err != nil {
		return fmt.Errorf("failed to save service state: %w", err)
	}

	s.logger.Info("service state saved", logger.Bool("disabled", disabled))

	return s.publishLocked(ctx)
}

// Resync publishes a snapshot of the current durable state.
func (s *Store) Resync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(ctx)
}

// SyncStatus returns the outcome of the last publish.
func (s *Store) SyncStatus() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// publishLocked must be called with s.mu held.
func (s *Store) publishLocked(ctx context.Context) error {
	if s.publisher == nil {
		return nil
	}

	now := s.now()
	s.status.LastTriedAt = now

	err := s.publish(ctx)
	if err != nil {
		s.status.LastError = err
		s.logger.Error("snapshot out of sync with mapping store", logger.Error(err))
		if !errors.Is(err, domain.ErrSnapshotIO) {
			err = fmt.Errorf("%w: %w", domain.ErrSnapshotIO, err)
		}
		return err
	}

	s.status.LastError = nil
	s.status.LastSyncedAt = now
	return nil
}

func (s *Store) publish(ctx context.Context) error {
	entries, err := s.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read mappings for snapshot: %w", err)
	}
	state, err := s.backend.ServiceState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read service state for snapshot: %w", err)
	}
	return s.publisher.Write(entries, state)
}
