// Package snapshot renders, publishes and loads the early-boot snapshot:
// a JSON copy of the alias mapping and service state that can be read
// without touching the durable mapping store.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
)

// FormatVersion is bumped on incompatible layout changes.
// Readers treat any other version as corrupt.
const FormatVersion = 1

// Snapshot is the immutable, fully denormalized routing table.
type Snapshot struct {
	Version         int              `json:"version"`
	Generation      string           `json:"generation"`
	GeneratedAt     time.Time        `json:"generated_at"`
	ExtraDomains    map[string]int64 `json:"extra_domains"`
	IsDisabled      int              `json:"is_disabled"`
	DisabledMessage string           `json:"disabled_message"`
}

// Build turns store state into a snapshot with a fresh generation id.
func Build(entries []domain.MappingEntry, state domain.ServiceState, now time.Time) *Snapshot {
	domains := make(map[string]int64, len(entries))
	for _, e := range entries {
		domains[e.Alias] = e.TenantID
	}

	disabled := 0
	if state.Disabled {
		disabled = 1
	}

	return &Snapshot{
		Version:         FormatVersion,
		Generation:      uuid.NewString(),
		GeneratedAt:     now.UTC(),
		ExtraDomains:    domains,
		IsDisabled:      disabled,
		DisabledMessage: state.DisabledMessage,
	}
}

// Disabled reports the global disable flag.
func (s *Snapshot) Disabled() bool { return s.IsDisabled == 1 }

// Lookup returns the tenant for an already normalized host.
func (s *Snapshot) Lookup(host string) (int64, bool) {
	id, ok := s.ExtraDomains[host]
	return id, ok
}

// Encode renders the snapshot as indented JSON with a trailing newline.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Parse decodes and checks a snapshot. Every failure wraps domain.ErrCorruptSnapshot.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrCorruptSnapshot)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrCorruptSnapshot, s.Version)
	}
	if s.IsDisabled != 0 && s.IsDisabled != 1 {
		return nil, fmt.Errorf("%w: is_disabled must be 0 or 1, got %d", domain.ErrCorruptSnapshot, s.IsDisabled)
	}
	for host, id := range s.ExtraDomains {
		if id < 1 {
			return nil, fmt.Errorf("%w: tenant id for %q must be positive, got %d", domain.ErrCorruptSnapshot, host, id)
		}
	}
	if s.ExtraDomains == nil {
		s.ExtraDomains = map[string]int64{}
	}
	return &s, nil
}
