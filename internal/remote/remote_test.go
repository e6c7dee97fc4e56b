package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/agoops/alexandrie/internal/core"
)

type scriptedSync struct {
	root       string
	refreshErr error
	pushErr    error
	refreshes  int
	pushes     int
}

func (s *scriptedSync) URL() (string, error) {
	return "https://github.com/example/crate-index", nil
}

func (s *scriptedSync) Root() string {
	return s.root
}

func (s *scriptedSync) Refresh(ctx context.Context) error {
	s.refreshes++
	return s.refreshErr
}

func (s *scriptedSync) CommitAndPush(ctx context.Context, msg string) error {
	s.pushes++
	return s.pushErr
}

func TestGuardDelegates(t *testing.T) {
	s := &scriptedSync{root: t.TempDir()}
	g := Guard(s)

	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := g.CommitAndPush(context.Background(), "msg"); err != nil {
		t.Fatalf("CommitAndPush failed: %v", err)
	}
	if s.refreshes != 1 || s.pushes != 1 {
		t.Errorf("expected exactly one delegated call each, got %d/%d", s.refreshes, s.pushes)
	}

	url, err := g.URL()
	if err != nil || url != "https://github.com/example/crate-index" {
		t.Errorf("URL not delegated: %q, %v", url, err)
	}
	if g.Root() != s.root {
		t.Error("Root not delegated")
	}
}

func TestGuardPassesConflictsThrough(t *testing.T) {
	s := &scriptedSync{root: t.TempDir(), pushErr: &core.ConflictError{Op: "push"}}
	g := Guard(s)

	// Conflicts are the expected compare-and-swap outcome; the breaker
	// must neither swallow nor count them.
	for i := 0; i < 20; i++ {
		err := g.CommitAndPush(context.Background(), "msg")
		if !errors.Is(err, core.ErrConflict) {
			t.Fatalf("attempt %d: expected ErrConflict, got %v", i+1, err)
		}
	}
	if s.pushes != 20 {
		t.Errorf("breaker must stay closed under conflicts, only %d calls went through", s.pushes)
	}
}

func TestGuardTripsOnRepeatedSyncFailures(t *testing.T) {
	s := &scriptedSync{
		root:       t.TempDir(),
		refreshErr: &core.SyncError{Op: "fetch", Err: errors.New("connection refused")},
	}
	g := Guard(s)

	for i := 0; i < tripThreshold; i++ {
		if err := g.Refresh(context.Background()); !errors.Is(err, core.ErrSync) {
			t.Fatalf("attempt %d: expected ErrSync, got %v", i+1, err)
		}
	}

	// The breaker is now open: the call fails fast without reaching the
	// synchronizer.
	before := s.refreshes
	err := g.Refresh(context.Background())
	if !errors.Is(err, core.ErrSync) {
		t.Fatalf("expected ErrSync from open breaker, got %v", err)
	}
	if s.refreshes != before {
		t.Error("open breaker must not call through to the synchronizer")
	}
}
