package snapshot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
)

func TestBuildAndParse(t *testing.T) {
	entries := []domain.MappingEntry{
		{Alias: "a.onion", TenantID: 5},
		{Alias: "b.onion", TenantID: 5},
		{Alias: "c.onion", TenantID: 7},
	}
	state := domain.ServiceState{Disabled: true, DisabledMessage: `Down "for" maintenance`}
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	snap := Build(entries, state, now)
	require.Equal(t, FormatVersion, snap.Version)
	require.NotEmpty(t, snap.Generation)
	assert.Equal(t, 1, snap.IsDisabled)
	assert.Len(t, snap.ExtraDomains, 3)

	data, err := snap.Encode()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, snap.Generation, parsed.Generation)
	assert.True(t, parsed.Disabled())
	assert.Equal(t, state.DisabledMessage, parsed.DisabledMessage)

	id, ok := parsed.Lookup("c.onion")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, ok = parsed.Lookup("missing.onion")
	assert.False(t, ok)
}

func TestBuildFreshGeneration(t *testing.T) {
	now := time.Now()
	a := Build(nil, domain.DefaultServiceState(), now)
	b := Build(nil, domain.DefaultServiceState(), now)
	assert.NotEqual(t, a.Generation, b.Generation)
	assert.Equal(t, 0, a.IsDisabled)
}

func TestParseCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "truncated", data: `{"version":1,"extra_domains":{"a.onion":`},
		{name: "not json", data: "<?php return [];"},
		{name: "wrong version", data: `{"version":2,"extra_domains":{},"is_disabled":0}`},
		{name: "bad disabled flag", data: `{"version":1,"extra_domains":{},"is_disabled":3}`},
		{name: "wrong tenant type", data: `{"version":1,"extra_domains":{"a.onion":"five"},"is_disabled":0}`},
		{name: "zero tenant id", data: `{"version":1,"extra_domains":{"a.onion":0},"is_disabled":0}`},
		{name: "negative tenant id", data: `{"version":1,"extra_domains":{"a.onion":5,"b.onion":-2},"is_disabled":0}`},
		{name: "trailing data", data: `{"version":1,"extra_domains":{},"is_disabled":0} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, domain.ErrCorruptSnapshot) {
				t.Errorf("Parse() error = %v, want ErrCorruptSnapshot", err)
			}
		})
	}
}

func TestParseMissingDomainsIsEmpty(t *testing.T) {
	snap, err := Parse([]byte(`{"version":1,"is_disabled":0,"disabled_message":""}`))
	require.NoError(t, err)
	require.NotNil(t, snap.ExtraDomains)
	assert.Empty(t, snap.ExtraDomains)
}

func TestEncodeIsSelfContained(t *testing.T) {
	snap := Build([]domain.MappingEntry{{Alias: "a.onion", TenantID: 1}}, domain.DefaultServiceState(), time.Now())
	data, err := snap.Encode()
	require.NoError(t, err)

	text := string(data)
	for _, key := range []string{`"extra_domains"`, `"is_disabled"`, `"disabled_message"`, `"version"`} {
		assert.True(t, strings.Contains(text, key), "missing key %s", key)
	}
	assert.True(t, strings.HasSuffix(text, "\n"))
}
