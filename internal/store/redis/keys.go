package redis

import "strings"

const (
	// DefaultKeyPrefix namespaces every key written by the backend
	DefaultKeyPrefix = "onionroute:"

	keyAliases      = "aliases"
	keyAliasesOrder = "aliases:order"
	keyServiceState = "service_state"
)

// Keys builds the Redis keys used by the backend.
type Keys struct {
	prefix string
}

// NewKeys returns key helpers for prefix. An empty prefix uses DefaultKeyPrefix.
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return Keys{prefix: prefix}
}

// Aliases is the hash alias -> JSON entry
func (k Keys) Aliases() string {
	return k.prefix + keyAliases
}

// AliasesOrder is the sorted set of aliases scored by creation time
func (k Keys) AliasesOrder() string {
	return k.prefix + keyAliasesOrder
}

// ServiceState is the JSON encoded global switch
func (k Keys) ServiceState() string {
	return k.prefix + keyServiceState
}

// All returns every key owned by the backend
func (k Keys) All() []string {
	return []string{k.Aliases(), k.AliasesOrder(), k.ServiceState()}
}
