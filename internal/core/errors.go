package core

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Sentinel errors for the index. Typed errors below unwrap to these so
// callers can classify failures with errors.Is without caring which backend
// produced them.
var (
	// ErrNotFound is returned when a crate or an exact version is absent.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateVersion is returned when adding a (name, version) pair
	// that already exists in the index.
	ErrDuplicateVersion = errors.New("duplicate version")

	// ErrMalformedRecord is returned when an index file cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrConfiguration is returned for a missing or invalid configuration
	// value, such as an unset remote URL.
	ErrConfiguration = errors.New("configuration error")

	// ErrSync is returned for network or authentication failures while
	// talking to the remote. It is never retried automatically.
	ErrSync = errors.New("sync failure")

	// ErrConflict is returned when a push is rejected because the remote
	// moved past the local base. It is the expected, retriable case.
	ErrConflict = errors.New("push conflict")

	// ErrVersionTooLow is returned when a published version does not
	// exceed the highest hosted version.
	ErrVersionTooLow = errors.New("version too low")
)

// NotFoundError wraps ErrNotFound with the crate (and optionally version)
// that was requested.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("no crate named %q with version %s found", e.Name, e.Version)
	}
	return fmt.Sprintf("no crate named %q found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateVersionError wraps ErrDuplicateVersion with the offending pair.
type DuplicateVersionError struct {
	Name    string
	Version string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("crate %q already has a version %s", e.Name, e.Version)
}

func (e *DuplicateVersionError) Unwrap() error {
	return ErrDuplicateVersion
}

// MalformedRecordError wraps ErrMalformedRecord with the crate and the
// 1-based line number of the offending record.
type MalformedRecordError struct {
	Name string
	Line int
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record for crate %q at line %d: %v", e.Name, e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// ConfigurationError wraps ErrConfiguration with the field at fault.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// SyncError wraps ErrSync with the synchronizer operation that failed.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return ErrSync
}

// ConflictError wraps ErrConflict with the operation whose push was
// rejected.
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: remote has diverged", e.Op)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// VersionTooLowError wraps ErrVersionTooLow with the hosted and published
// versions involved.
type VersionTooLowError struct {
	Name      string
	Hosted    *semver.Version
	Published *semver.Version
}

func (e *VersionTooLowError) Error() string {
	return fmt.Sprintf("the published version is too low (hosted version is %s, and thus %s <= %s)",
		e.Hosted, e.Published, e.Hosted)
}

func (e *VersionTooLowError) Unwrap() error {
	return ErrVersionTooLow
}
