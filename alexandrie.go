// Package alexandrie provides the index-management core of a crate
// registry: the authoritative, versioned catalogue of published crates and
// their release metadata, backed by a git working tree synchronized with a
// remote.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/agoops/alexandrie"
//		_ "github.com/agoops/alexandrie/backends"
//	)
//
//	idx, err := alexandrie.NewIndex("command-line", alexandrie.BackendConfig{
//		Path:   "/var/lib/alexandrie/index",
//		Remote: "https://github.com/example/crate-index",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	records, err := idx.AllRecords("serde")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, rec := range records {
//		fmt.Println(rec.Name, rec.Version)
//	}
//
// Mutations (AddRecord, AlterRecord, YankRecord, UnyankRecord) follow a
// read-before-write protocol against the latest remote state and retry
// rejected pushes a bounded number of times. Callers are expected to have
// authenticated and authorized the acting author already; the index accepts
// mutation requests unconditionally.
package alexandrie

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/agoops/alexandrie/internal/core"
	"github.com/agoops/alexandrie/internal/metadata"
)

// Re-export types from internal/core.
type (
	// Record is the metadata entry for one published crate version.
	Record = core.Record

	// Dependency is one dependency specifier of a crate version.
	Dependency = core.Dependency

	// DependencyKind indicates when a dependency is required.
	DependencyKind = core.DependencyKind

	// Indexer is the interface implemented by all index backends.
	Indexer = core.Indexer

	// Synchronizer owns all interaction with the remote-backed working
	// tree.
	Synchronizer = core.Synchronizer

	// BackendConfig configures an index backend.
	BackendConfig = core.BackendConfig
)

// Re-export dependency kinds.
const (
	Normal = core.Normal
	Build  = core.Build
	Dev    = core.Dev
)

// Re-export error sentinels.
var (
	ErrNotFound         = core.ErrNotFound
	ErrDuplicateVersion = core.ErrDuplicateVersion
	ErrMalformedRecord  = core.ErrMalformedRecord
	ErrConfiguration    = core.ErrConfiguration
	ErrSync             = core.ErrSync
	ErrConflict         = core.ErrConflict
	ErrVersionTooLow    = core.ErrVersionTooLow
)

// Error types.
type (
	NotFoundError         = core.NotFoundError
	DuplicateVersionError = core.DuplicateVersionError
	MalformedRecordError  = core.MalformedRecordError
	ConfigurationError    = core.ConfigurationError
	SyncError             = core.SyncError
	ConflictError         = core.ConflictError
	VersionTooLowError    = core.VersionTooLowError
)

// NewIndex creates an index of the given kind. Backends must be imported to
// be registered; importing the backends package registers all of them.
//
// Supported kinds: "command-line", "git2".
func NewIndex(kind string, cfg BackendConfig) (Indexer, error) {
	return core.NewIndex(kind, cfg)
}

// SupportedBackends returns all registered backend kinds.
func SupportedBackends() []string {
	return core.SupportedBackends()
}

// YankRecord marks a crate version as excluded from new dependency
// resolution without deleting it.
func YankRecord(ctx context.Context, idx Indexer, name string, version *semver.Version) error {
	return core.YankRecord(ctx, idx, name, version)
}

// UnyankRecord reverses a yank, restoring the version for resolution.
func UnyankRecord(ctx context.Context, idx Indexer, name string, version *semver.Version) error {
	return core.UnyankRecord(ctx, idx, name, version)
}

// MatchRecordPURL resolves a PURL-style crate reference against the index.
// A versioned reference (pkg:cargo/serde@1.0.4) pins that exact version,
// yanked or not; an unversioned one (pkg:cargo/serde) resolves to the
// latest record.
func MatchRecordPURL(idx Indexer, ref string) (Record, error) {
	name, version, err := metadata.ParseRef(ref)
	if err != nil {
		return Record{}, err
	}
	if version == "" {
		return idx.LatestRecord(name)
	}

	pinned, err := semver.NewVersion(version)
	if err != nil {
		return Record{}, err
	}

	// Exact pinning reaches yanked versions; only requirement matching
	// excludes them.
	records, err := idx.AllRecords(name)
	if err != nil {
		return Record{}, err
	}
	for i := range records {
		if records[i].Version.Equal(pinned) {
			return records[i], nil
		}
	}
	return Record{}, &NotFoundError{Name: name, Version: pinned.String()}
}

// PURL renders the canonical PURL of a crate version, or of the crate
// itself when version is nil.
func PURL(name string, version *semver.Version) string {
	return metadata.PURL(name, version)
}
