package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Indexer is the interface implemented by all index management strategies.
//
// Mutating operations follow a read-before-write protocol: refresh the
// working tree, decode the crate's record list, apply the change, re-encode
// and commit-and-push. A rejected push is retried internally from a fresh
// refresh, bounded, before surfacing a sync failure.
type Indexer interface {
	// URL gives back the URL of the managed crate index.
	URL() (string, error)

	// Refresh brings the index up to date with the remote, in case another
	// instance made modifications to it.
	Refresh(ctx context.Context) error

	// AllRecords retrieves all version records of a crate, in publish
	// order. A never-published crate yields an empty slice, not an error.
	AllRecords(name string) ([]Record, error)

	// LatestRecord retrieves the latest version record of a crate:
	// the highest non-yanked version, or the highest overall when every
	// version is yanked.
	LatestRecord(name string) (Record, error)

	// MatchRecord retrieves the highest non-yanked version record that
	// satisfies the given requirement.
	MatchRecord(name string, req *semver.Constraints) (Record, error)

	// AddRecord adds a new crate record into the index.
	AddRecord(ctx context.Context, record Record) error

	// AlterRecord applies fn to the unique record matching (name, version)
	// and stores the result. All mutation flows through here.
	AlterRecord(ctx context.Context, name string, version *semver.Version, fn func(*Record)) error

	// CommitAndPush commits any pending local changes and pushes them
	// upstream.
	CommitAndPush(ctx context.Context, msg string) error
}

// Synchronizer owns all interaction with the remote-backed working tree.
// Implementations coordinate across processes only through the remote: a
// rejected push is the sole cross-process ordering guarantee.
type Synchronizer interface {
	// URL returns the configured remote location.
	URL() (string, error)

	// Root returns the path of the local working tree.
	Root() string

	// Refresh brings the local working tree up to date with the remote,
	// discarding any local divergence.
	Refresh(ctx context.Context) error

	// CommitAndPush stages all pending modifications, creates one commit
	// with the given message and pushes it. Either the full set of staged
	// changes lands or none does. A push rejected because the remote moved
	// is reported as a ConflictError.
	CommitAndPush(ctx context.Context, msg string) error
}

// YankRecord marks a crate version as excluded from new dependency
// resolution without deleting it.
func YankRecord(ctx context.Context, idx Indexer, name string, version *semver.Version) error {
	return idx.AlterRecord(ctx, name, version, func(r *Record) {
		r.SetYanked(true)
	})
}

// UnyankRecord reverses a yank, restoring the version for resolution.
func UnyankRecord(ctx context.Context, idx Indexer, name string, version *semver.Version) error {
	return idx.AlterRecord(ctx, name, version, func(r *Record) {
		r.SetYanked(false)
	})
}

// BackendConfig carries everything a backend needs to manage its working
// tree.
type BackendConfig struct {
	// Path is the local working tree directory.
	Path string
	// Remote is the URL of the upstream index repository.
	Remote string
	// Branch is the branch tracked on the remote. Defaults to "master".
	Branch string
	// AuthorName and AuthorEmail identify the committer for index commits.
	AuthorName  string
	AuthorEmail string
}

// Factory creates an Indexer for a given configuration.
type Factory func(cfg BackendConfig) (Indexer, error)

var (
	backends = make(map[string]Factory)
	mu       sync.RWMutex
)

// RegisterBackend adds an index backend factory to the global registry.
// kind matches the "type" value of the index configuration, e.g.
// "command-line" or "git2".
func RegisterBackend(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	backends[kind] = factory
}

// NewIndex creates an index of the given kind. Backends must be imported to
// be registered.
func NewIndex(kind string, cfg BackendConfig) (Indexer, error) {
	mu.RLock()
	factory, ok := backends[kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown index backend: %s", kind)
	}

	return factory(cfg)
}

// SupportedBackends returns all registered backend kinds.
func SupportedBackends() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(backends))
	for kind := range backends {
		kinds = append(kinds, kind)
	}
	return kinds
}
