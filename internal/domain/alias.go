package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// OnionSuffix is the default alias suffix.
const OnionSuffix = ".onion"

// onionV3Len is the length of a v3 onion service label (base32 of key+checksum+version).
const onionV3Len = 56

var validate = validator.New()

// AliasValidator normalizes and checks host aliases against a suffix.
type AliasValidator struct {
	suffix string
}

// NewAliasValidator returns a validator for aliases ending in suffix.
// An empty suffix falls back to OnionSuffix.
func NewAliasValidator(suffix string) *AliasValidator {
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix == "" {
		suffix = OnionSuffix
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return &AliasValidator{suffix: suffix}
}

// Suffix returns the configured alias suffix (with leading dot).
func (v *AliasValidator) Suffix() string { return v.suffix }

// IsAliasHost reports whether host carries the alias suffix. It does not validate.
func (v *AliasValidator) IsAliasHost(host string) bool {
	return strings.HasSuffix(NormalizeHost(host), v.suffix)
}

// Normalize cleans user input and validates it.
// Examples:
//   - "HTTP://Abc...xyz.onion/" -> "abc...xyz.onion"
//   - "www.abc...xyz.onion" -> accepted (subdomain of a v3 address)
//   - "example.com" -> ErrInvalidAlias
func (v *AliasValidator) Normalize(raw string) (string, error) {
	alias := strings.ToLower(strings.TrimSpace(raw))
	alias = strings.TrimPrefix(alias, "http://")
	alias = strings.TrimPrefix(alias, "https://")
	alias = strings.TrimRight(alias, "/.")

	if alias == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAlias)
	}
	if !strings.HasSuffix(alias, v.suffix) || len(alias) == len(v.suffix) {
		return "", fmt.Errorf("%w: %q must end with %s", ErrInvalidAlias, raw, v.suffix)
	}
	if err := validate.Var(alias, "hostname_rfc1123"); err != nil {
		return "", fmt.Errorf("%w: %q is not a valid host name", ErrInvalidAlias, raw)
	}

	if v.suffix == OnionSuffix {
		labels := strings.Split(strings.TrimSuffix(alias, v.suffix), ".")
		if !isOnionV3Label(labels[len(labels)-1]) {
			return "", fmt.Errorf("%w: %q is not a v3 onion address", ErrInvalidAlias, raw)
		}
	}

	return alias, nil
}

func isOnionV3Label(label string) bool {
	if len(label) != onionV3Len {
		return false
	}
	for _, r := range label {
		if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
			return false
		}
	}
	return true
}

// NormalizeHost lower-cases a Host header value and strips the port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		// IPv6 literal, never an alias
		if i := strings.LastIndex(host, "]"); i != -1 {
			return host[:i+1]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i != -1 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
