package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Backend stores mappings in Redis.
//
// Layout:
//
//	<prefix>aliases        hash  alias -> JSON MappingEntry
//	<prefix>aliases:order  zset  alias scored by CreatedAt (unix nanos)
//	<prefix>service_state  string JSON ServiceState
type Backend struct {
	client *redis.Client
	keys   Keys
}

// NewBackend creates a Redis backed mapping store
func NewBackend(client *redis.Client, prefix string) *Backend {
	return &Backend{
		client: client,
		keys:   NewKeys(prefix),
	}
}

// Keys returns the key helpers in use
func (b *Backend) Keys() Keys {
	return b.keys
}

// Get retrieves an entry by alias
func (b *Backend) Get(ctx context.Context, alias string) (domain.MappingEntry, bool, error) {
	data, err := b.client.HGet(ctx, b.keys.Aliases(), alias).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MappingEntry{}, false, nil
		}
		return domain.MappingEntry{}, false, fmt.Errorf("failed to get alias: %w", err)
	}

	var entry domain.MappingEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.MappingEntry{}, false, fmt.Errorf("failed to unmarshal entry %s: %w", alias, err)
	}
	return entry, true, nil
}

// List retrieves all entries, oldest first
func (b *Backend) List(ctx context.Context) ([]domain.MappingEntry, error) {
	aliases, err := b.client.ZRange(ctx, b.keys.AliasesOrder(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get alias order: %w", err)
	}

	if len(aliases) == 0 {
		return []domain.MappingEntry{}, nil
	}

	values, err := b.client.HMGet(ctx, b.keys.Aliases(), aliases...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get aliases: %w", err)
	}

	entries := make([]domain.MappingEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Order entry without data, left behind by an interrupted delete
			continue
		}
		var entry domain.MappingEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %s: %w", aliases[i], err)
		}
		entries = append(entries, entry)
	}

	domain.SortEntries(entries)
	return entries, nil
}

// Put stores an entry and records its position
func (b *Backend) Put(ctx context.Context, entry domain.MappingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, b.keys.Aliases(), entry.Alias, data)
		pipe.ZAdd(ctx, b.keys.AliasesOrder(), redis.Z{
			Score:  float64(entry.CreatedAt.UnixNano()),
			Member: entry.Alias,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// DeleteTenant removes all aliases of a tenant
func (b *Backend) DeleteTenant(ctx context.Context, tenantID int64) (int, error) {
	all, err := b.client.HGetAll(ctx, b.keys.Aliases()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get aliases: %w", err)
	}

	var owned []string
	for alias, raw := range all {
		var entry domain.MappingEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return 0, fmt.Errorf("failed to unmarshal entry %s: %w", alias, err)
		}
		if entry.TenantID == tenantID {
			owned = append(owned, alias)
		}
	}

	if len(owned) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(owned))
	for i, alias := range owned {
		members[i] = alias
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, b.keys.Aliases(), owned...)
		pipe.ZRem(ctx, b.keys.AliasesOrder(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete aliases: %w", err)
	}
	return len(owned), nil
}

// ServiceState retrieves the global switch
func (b *Backend) ServiceState(ctx context.Context) (domain.ServiceState, error) {
	data, err := b.client.Get(ctx, b.keys.ServiceState()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DefaultServiceState(), nil
		}
		return domain.ServiceState{}, fmt.Errorf("failed to get service state: %w", err)
	}

	var state domain.ServiceState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.ServiceState{}, fmt.Errorf("failed to unmarshal service state: %w", err)
	}
	return state, nil
}

// SetServiceState stores the global switch
func (b *Backend) SetServiceState(ctx context.Context, state domain.ServiceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal service state: %w", err)
	}

	if err := b.client.Set(ctx, b.keys.ServiceState(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save service state: %w", err)
	}
	return nil
}

// Ping checks the connection
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
