// Package admin is the operator facing surface over the mapping store.
// Callers are assumed to be authorized already.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
)

// MappingStore is the part of mapping.Store used here.
type MappingStore interface {
	List(ctx context.Context) ([]domain.MappingEntry, error)
	Put(ctx context.Context, tenantID int64, alias string) error
	Delete(ctx context.Context, tenantID int64) error
	GetServiceState(ctx context.Context) (domain.ServiceState, error)
	SetServiceState(ctx context.Context, disabled bool, message string) error
	Resync(ctx context.Context) error
	SyncStatus() mapping.SyncStatus
}

// SnapshotTarget reports on the snapshot file.
type SnapshotTarget interface {
	Path() string
	Exists() (bool, error)
	DirWritable() error
}

// HookInstaller checks and installs the early boot opt-in.
type HookInstaller interface {
	Path() string
	Installed() (bool, error)
	Install() (earlyboot.InstallResult, error)
}

// HookPoint reports whether the early router is live in this process.
type HookPoint interface {
	Registered() bool
}

// TenantDirectory looks tenants up for display and search.
type TenantDirectory interface {
	Get(id int64) (tenants.Tenant, bool)
	Search(query string, limit int) []tenants.Match
}

// Mapping is a MappingEntry decorated for display.
type Mapping struct {
	Alias      string    `json:"alias"`
	TenantID   int64     `json:"tenant_id"`
	TenantName string    `json:"tenant_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service implements the admin operations.
type Service struct {
	store     MappingStore
	snapshot  SnapshotTarget
	installer HookInstaller
	point     HookPoint
	tenants   TenantDirectory
	logger    logger.Logger
}

// NewService wires the admin surface. installer, point and tenants may be nil.
func NewService(store MappingStore, snap SnapshotTarget, installer HookInstaller, point HookPoint, dir TenantDirectory, log logger.Logger) *Service {
	return &Service{
		store:     store,
		snapshot:  snap,
		installer: installer,
		point:     point,
		tenants:   dir,
		logger:    log,
	}
}

func (s *Service) ListMappings(ctx context.Context) ([]Mapping, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Mapping, 0, len(entries))
	for _, e := range entries {
		m := Mapping{Alias: e.Alias, TenantID: e.TenantID, CreatedAt: e.CreatedAt}
		if s.tenants != nil {
			if t, ok := s.tenants.Get(e.TenantID); ok {
				m.TenantName = t.DisplayName()
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) SaveMapping(ctx context.Context, tenantID int64, alias string) error {
	return s.store.Put(ctx, tenantID, alias)
}

func (s *Service) DeleteMapping(ctx context.Context, tenantID int64) error {
	return s.store.Delete(ctx, tenantID)
}

func (s *Service) GetServiceState(ctx context.Context) (domain.ServiceState, error) {
	return s.store.GetServiceState(ctx)
}

// SetServiceState stores the switch. A blank message falls back to
// domain.DefaultDisabledMessage.
func (s *Service) SetServiceState(ctx context.Context, disabled bool, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = domain.DefaultDisabledMessage
	}
	return s.store.SetServiceState(ctx, disabled, message)
}

// SearchTenants returns at most tenants.DefaultSearchLimit matches.
func (s *Service) SearchTenants(_ context.Context, query string) []tenants.Match {
	if s.tenants == nil {
		return []tenants.Match{}
	}
	return s.tenants.Search(query, tenants.DefaultSearchLimit)
}

// RegenerateSnapshot republishes the snapshot from the durable store.
func (s *Service) RegenerateSnapshot(ctx context.Context) error {
	if err := s.store.Resync(ctx); err != nil {
		return err
	}
	s.logger.Info("snapshot regenerated", logger.String("path", s.snapshot.Path()))
	return nil
}

// InstallHook opts the site into the early boot phase.
func (s *Service) InstallHook(_ context.Context) (earlyboot.InstallResult, error) {
	if s.installer == nil {
		return earlyboot.AlreadyPresent, errors.New("no bootstrap config configured")
	}
	res, err := s.installer.Install()
	if err != nil {
		s.logger.Warn("early boot hook install failed",
			logger.String("path", s.installer.Path()),
			logger.Error(err))
		return res, fmt.Errorf("install early boot hook: %w", err)
	}
	return res, nil
}
