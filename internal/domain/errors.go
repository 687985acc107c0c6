package domain

import "errors"

var (
	// ErrInvalidAlias is returned when a host alias fails syntax validation.
	ErrInvalidAlias = errors.New("invalid host alias")

	// ErrInvalidTenant is returned for tenant IDs below 1.
	ErrInvalidTenant = errors.New("invalid tenant id")

	// ErrAliasTaken is returned when an alias is already mapped to another tenant.
	ErrAliasTaken = errors.New("host alias already mapped to another tenant")

	// ErrNotFound is returned when a tenant has no mapping.
	ErrNotFound = errors.New("mapping not found")

	// ErrSnapshotIO is returned when the snapshot could not be published.
	// The durable mutation that triggered the write is kept.
	ErrSnapshotIO = errors.New("snapshot write failed")

	// ErrSnapshotMissing is returned when no snapshot has been written yet.
	ErrSnapshotMissing = errors.New("snapshot missing")

	// ErrCorruptSnapshot is returned when the snapshot cannot be parsed.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)
