package mapping_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
	"github.com/MrSnakeDoc/onionroute/internal/snapshot"
	"github.com/MrSnakeDoc/onionroute/internal/store/memory"
)

const (
	aliasA = "2gzyxa5ihm7nsggfxnu52rck2vv4rvmdlkiu3zzui5du4xyclen53wid.onion"
	aliasB = "duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion"
)

const snapshotPath = "/data/snapshot.json"

func newStore(t *testing.T) (*mapping.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	w := snapshot.NewWriter(fs, snapshotPath, logger.Nop())
	return mapping.NewStore(memory.New(), w, nil, logger.Nop()), fs
}

func loadSnapshot(t *testing.T, fs afero.Fs) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Load(fs, snapshotPath)
	require.NoError(t, err)
	return snap
}

func TestStorePutPublishesSnapshot(t *testing.T) {
	ctx := context.Background()
	s, fs := newStore(t)

	require.NoError(t, s.Put(ctx, 5, aliasA))

	tenant, found, err := s.Get(ctx, aliasA)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(5), tenant)

	snap := loadSnapshot(t, fs)
	id, ok := snap.Lookup(aliasA)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	status := s.SyncStatus()
	assert.True(t, status.InSync())
}

func TestStorePutNormalizes(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Put(ctx, 5, "http://"+aliasA+"/"))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, aliasA, entries[0].Alias)
}

func TestStorePutIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Put(ctx, 5, aliasA))
	first, err := s.List(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, 5, aliasA))
	second, err := s.List(ctx)
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)
}

func TestStorePutValidation(t *testing.T) {
	ctx := context.Background()
	s, fs := newStore(t)

	err := s.Put(ctx, 5, "example.com")
	assert.True(t, errors.Is(err, domain.ErrInvalidAlias))

	err = s.Put(ctx, 0, aliasA)
	assert.True(t, errors.Is(err, domain.ErrInvalidTenant))

	exists, _ := afero.Exists(fs, snapshotPath)
	assert.False(t, exists, "rejected writes must not publish")
}

func TestStoreAliasUniqueness(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.Put(ctx, 5, aliasA))

	err := s.Put(ctx, 6, aliasA)
	assert.True(t, errors.Is(err, domain.ErrAliasTaken))

	tenant, _, _ := s.Get(ctx, aliasA)
	assert.Equal(t, int64(5), tenant, "existing mapping must survive a rejected claim")

	// A tenant may own several aliases.
	require.NoError(t, s.Put(ctx, 5, aliasB))
	entries, _ := s.List(ctx)
	assert.Len(t, entries, 2)

	alias, found, err := s.AliasFor(ctx, 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, aliasB, alias, "AliasFor returns the most recent alias")
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, fs := newStore(t)

	require.NoError(t, s.Put(ctx, 5, aliasA))
	require.NoError(t, s.Put(ctx, 5, aliasB))
	require.NoError(t, s.Delete(ctx, 5))

	_, found, _ := s.Get(ctx, aliasA)
	assert.False(t, found)

	snap := loadSnapshot(t, fs)
	assert.Empty(t, snap.ExtraDomains)

	err := s.Delete(ctx, 5)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStoreDeleteNotFoundHasNoSideEffect(t *testing.T) {
	ctx := context.Background()
	calls := 0
	pub := mapping.PublisherFunc(func([]domain.MappingEntry, domain.ServiceState) error {
		calls++
		return nil
	})
	s := mapping.NewStore(memory.New(), pub, nil, logger.Nop())

	err := s.Delete(ctx, 42)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, calls)
}

func TestStoreServiceState(t *testing.T) {
	ctx := context.Background()
	s, fs := newStore(t)

	state, err := s.GetServiceState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Disabled)
	assert.Equal(t, domain.DefaultDisabledMessage, state.DisabledMessage)

	require.NoError(t, s.SetServiceState(ctx, true, "Down for maintenance"))

	state, err = s.GetServiceState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Disabled)

	snap := loadSnapshot(t, fs)
	assert.True(t, snap.Disabled())
	assert.Equal(t, "Down for maintenance", snap.DisabledMessage)
}

func TestStoreSnapshotFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	w := snapshot.NewWriter(fs, snapshotPath, logger.Nop())
	s := mapping.NewStore(memory.New(), w, nil, logger.Nop())

	err := s.Put(ctx, 5, aliasA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSnapshotIO))

	tenant, found, _ := s.Get(ctx, aliasA)
	assert.True(t, found, "durable mutation must not be rolled back")
	assert.Equal(t, int64(5), tenant)

	status := s.SyncStatus()
	assert.False(t, status.InSync())
	assert.Error(t, status.LastError)
}

func TestStoreResyncClearsError(t *testing.T) {
	ctx := context.Background()
	fail := true
	pub := mapping.PublisherFunc(func([]domain.MappingEntry, domain.ServiceState) error {
		if fail {
			return errors.New("disk full")
		}
		return nil
	})
	s := mapping.NewStore(memory.New(), pub, nil, logger.Nop())

	err := s.Put(ctx, 5, aliasA)
	assert.True(t, errors.Is(err, domain.ErrSnapshotIO))
	assert.False(t, s.SyncStatus().InSync())

	fail = false
	require.NoError(t, s.Resync(ctx))
	assert.True(t, s.SyncStatus().InSync())
}
