// Package index implements the crate index coordinator: query and mutation
// operations over a version-controlled working tree, with a read-before-
// write protocol and bounded retry of rejected pushes.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/cenk/backoff"
	"github.com/rs/zerolog"

	"github.com/agoops/alexandrie/internal/core"
	"github.com/agoops/alexandrie/internal/tree"
)

// DefaultConflictRetries is how many times a mutation is re-run from a
// fresh refresh after its push is rejected, before surfacing a sync
// failure. Refreshing is cheap relative to a lost publish, so retries are
// immediate.
const DefaultConflictRetries = 4

// Index coordinates the record store and a working-copy synchronizer. It is
// safe for concurrent use: mutations are serialized by an exclusive lock
// held for the full refresh-mutate-commit-push span, reads run without
// locking against each other.
type Index struct {
	sync    core.Synchronizer
	retries uint64
	log     zerolog.Logger

	// mu enforces single-writer discipline over the working tree; a second
	// concurrent mutation would interleave with staged but uncommitted
	// changes.
	mu sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

// WithConflictRetries sets the retry bound for rejected pushes.
func WithConflictRetries(n uint64) Option {
	return func(idx *Index) {
		idx.retries = n
	}
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(idx *Index) {
		idx.log = log
	}
}

// New creates an Index over the given synchronizer.
func New(s core.Synchronizer, opts ...Option) *Index {
	idx := &Index{
		sync:    s,
		retries: DefaultConflictRetries,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// URL gives back the URL of the managed crate index.
func (idx *Index) URL() (string, error) {
	return idx.sync.URL()
}

// Refresh brings the index up to date with the remote. It is idempotent and
// safe to call with no pending local changes.
func (idx *Index) Refresh(ctx context.Context) error {
	return idx.sync.Refresh(ctx)
}

// CommitAndPush commits pending local changes and pushes them upstream.
func (idx *Index) CommitAndPush(ctx context.Context, msg string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.sync.CommitAndPush(ctx, msg)
}

// AllRecords retrieves all version records of a crate in publish order. A
// never-published crate yields an empty slice.
func (idx *Index) AllRecords(name string) ([]core.Record, error) {
	return tree.ReadRecords(idx.sync.Root(), name)
}

// LatestRecord retrieves the record with the highest version among
// non-yanked records, or the highest overall when every version is yanked.
// Yanked versions stay resolvable by exact reference but lose to any
// non-yanked alternative here.
func (idx *Index) LatestRecord(name string) (core.Record, error) {
	records, err := idx.AllRecords(name)
	if err != nil {
		return core.Record{}, err
	}
	if len(records) == 0 {
		return core.Record{}, &core.NotFoundError{Name: name}
	}

	if latest, ok := highest(records, func(r *core.Record) bool { return !r.IsYanked() }); ok {
		return latest, nil
	}
	latest, _ := highest(records, nil)
	return latest, nil
}

// MatchRecord retrieves the highest non-yanked record satisfying req.
// Yanked versions are never reachable through requirement matching, only
// through exact-version pinning.
func (idx *Index) MatchRecord(name string, req *semver.Constraints) (core.Record, error) {
	records, err := idx.AllRecords(name)
	if err != nil {
		return core.Record{}, err
	}

	match, ok := highest(records, func(r *core.Record) bool {
		return !r.IsYanked() && req.Check(r.Version)
	})
	if !ok {
		return core.Record{}, &core.NotFoundError{Name: name}
	}
	return match, nil
}

// AddRecord adds a new crate record into the index. It fails with a
// DuplicateVersionError when the (name, version) pair already exists
// against the latest remote state, never a stale local copy.
func (idx *Index) AddRecord(ctx context.Context, record core.Record) error {
	if record.Name == "" || record.Version == nil {
		return fmt.Errorf("record is missing its name or version")
	}

	msg := fmt.Sprintf("Adding crate '%s#%s'", record.Name, record.Version)

	return idx.mutate(ctx, record.Name, msg, func(root string) error {
		records, err := tree.ReadRecords(root, record.Name)
		if err != nil {
			return err
		}
		for i := range records {
			if records[i].Version.Equal(record.Version) {
				return &core.DuplicateVersionError{
					Name:    record.Name,
					Version: record.Version.String(),
				}
			}
		}
		return tree.AppendRecord(root, record.Name, record)
	})
}

// AlterRecord locates the unique record matching (name, version), applies
// fn to it and stores the re-encoded list. This is the single choke point
// through which all record mutation flows.
func (idx *Index) AlterRecord(ctx context.Context, name string, version *semver.Version, fn func(*core.Record)) error {
	msg := fmt.Sprintf("Altering crate '%s#%s'", name, version)

	return idx.mutate(ctx, name, msg, func(root string) error {
		records, err := tree.ReadRecords(root, name)
		if err != nil {
			return err
		}

		found := -1
		for i := range records {
			if records[i].Version.Equal(version) {
				found = i
				break
			}
		}
		if found < 0 {
			return &core.NotFoundError{Name: name, Version: version.String()}
		}

		fn(&records[found])
		return tree.WriteRecords(root, name, records)
	})
}

// mutate runs one refresh-mutate-commit-push cycle, retrying the whole
// cycle from a fresh refresh when the push is rejected. Retries re-derive
// their change from the refreshed state; a stale diff is never reapplied.
func (idx *Index) mutate(ctx context.Context, name, msg string, change func(root string) error) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			idx.log.Debug().Str("crate", name).Int("attempt", attempt).Msg("retrying after push conflict")
		}

		if err := idx.sync.Refresh(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if err := change(idx.sync.Root()); err != nil {
			return backoff.Permanent(err)
		}
		if err := idx.sync.CommitAndPush(ctx, msg); err != nil {
			if errors.Is(err, core.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, idx.retries))
	if errors.Is(err, core.ErrConflict) {
		return &core.SyncError{Op: "push", Err: fmt.Errorf("conflict retries exhausted: %w", err)}
	}
	return err
}

// highest returns the record with the highest version among those passing
// keep, using full semantic-version precedence. A nil keep admits all.
func highest(records []core.Record, keep func(*core.Record) bool) (core.Record, bool) {
	best := -1
	for i := range records {
		if keep != nil && !keep(&records[i]) {
			continue
		}
		if best < 0 || records[i].Version.GreaterThan(records[best].Version) {
			best = i
		}
	}
	if best < 0 {
		return core.Record{}, false
	}
	return records[best], true
}
