package gitcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoops/alexandrie/internal/core"
)

// fakeRunner records git invocations and replays scripted results, so no
// test ever spawns a real git process.
type fakeRunner struct {
	calls   []string
	results map[string]result
}

type result struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]result)}
}

func (f *fakeRunner) on(prefix, out string, err error) {
	f.results[prefix] = result{out: out, err: err}
}

func (f *fakeRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	call := strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for prefix, res := range f.results {
		if strings.HasPrefix(call, prefix) {
			return res.out, res.err
		}
	}
	return "", nil
}

func (f *fakeRunner) calledWith(prefix string) bool {
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func existingTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func newTestSync(t *testing.T, run *fakeRunner) *Synchronizer {
	t.Helper()
	s, err := New(core.BackendConfig{
		Path:        existingTree(t),
		Remote:      "https://github.com/example/crate-index",
		AuthorName:  "alexandrie",
		AuthorEmail: "crates@example.com",
	}, WithRunner(run.run))
	require.NoError(t, err)
	return s
}

func TestNewRequiresRemote(t *testing.T) {
	_, err := New(core.BackendConfig{Path: t.TempDir()})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(core.BackendConfig{Remote: "https://github.com/example/crate-index"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewClonesMissingTree(t *testing.T) {
	run := newFakeRunner()
	path := filepath.Join(t.TempDir(), "index")

	_, err := New(core.BackendConfig{
		Path:   path,
		Remote: "https://github.com/example/crate-index",
	}, WithRunner(run.run))
	require.NoError(t, err)

	assert.True(t, run.calledWith("clone"), "expected a clone for a missing working tree, got %v", run.calls)
}

func TestNewInitializesEmptyRemote(t *testing.T) {
	run := newFakeRunner()
	run.on("clone", "fatal: Remote branch master not found in upstream origin", fmt.Errorf("exit status 128"))
	path := filepath.Join(t.TempDir(), "index")

	_, err := New(core.BackendConfig{
		Path:   path,
		Remote: "https://github.com/example/crate-index",
	}, WithRunner(run.run))
	require.NoError(t, err)

	assert.True(t, run.calledWith("init --initial-branch master"), "an empty remote must be tracked from a fresh local tree, got %v", run.calls)
	assert.True(t, run.calledWith("remote add origin"))
}

func TestNewSurfacesCloneFailure(t *testing.T) {
	run := newFakeRunner()
	run.on("clone", "fatal: repository 'https://github.com/example/no-such-index/' not found", fmt.Errorf("exit status 128"))
	path := filepath.Join(t.TempDir(), "index")

	_, err := New(core.BackendConfig{
		Path:   path,
		Remote: "https://github.com/example/no-such-index",
	}, WithRunner(run.run))
	assert.ErrorIs(t, err, core.ErrSync)
	assert.False(t, run.calledWith("init"), "an unreachable remote must not be papered over with a local init, got %v", run.calls)
}

func TestNewSkipsCloneForExistingTree(t *testing.T) {
	run := newFakeRunner()
	newTestSync(t, run)

	assert.Empty(t, run.calls, "an existing working tree must not be re-cloned")
}

func TestURL(t *testing.T) {
	s := newTestSync(t, newFakeRunner())

	url, err := s.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/example/crate-index", url)
}

func TestRefreshFetchesAndResets(t *testing.T) {
	run := newFakeRunner()
	s := newTestSync(t, run)

	require.NoError(t, s.Refresh(context.Background()))

	assert.True(t, run.calledWith("fetch origin"))
	assert.True(t, run.calledWith("reset --hard refs/remotes/origin/master"))
}

func TestRefreshSkipsResetWhenRemoteBranchMissing(t *testing.T) {
	run := newFakeRunner()
	run.on("rev-parse", "", fmt.Errorf("exit status 1"))
	s := newTestSync(t, run)

	require.NoError(t, s.Refresh(context.Background()))
	assert.False(t, run.calledWith("reset"), "must not reset onto a branch the remote does not have")
}

func TestRefreshUnhealthyRepositoryIsSyncError(t *testing.T) {
	run := newFakeRunner()
	run.on("rev-parse", "fatal: not a git repository (or any of the parent directories): .git", fmt.Errorf("exit status 128"))
	s := newTestSync(t, run)

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrSync)
	assert.False(t, run.calledWith("reset"))
}

func TestRefreshFetchFailure(t *testing.T) {
	run := newFakeRunner()
	run.on("fetch", "fatal: unable to access remote", fmt.Errorf("exit status 128"))
	s := newTestSync(t, run)

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrSync)
}

func TestCommitAndPushSequence(t *testing.T) {
	run := newFakeRunner()
	s := newTestSync(t, run)

	require.NoError(t, s.CommitAndPush(context.Background(), "Adding crate 'serde#1.0.0'"))

	assert.True(t, run.calledWith("add --all"))
	assert.True(t, run.calledWith("-c user.name=alexandrie -c user.email=crates@example.com commit -m Adding crate 'serde#1.0.0'"))
	assert.True(t, run.calledWith("push origin master"))
}

func TestCommitAndPushCleanTreeIsNoOp(t *testing.T) {
	run := newFakeRunner()
	run.on("-c user.name", "nothing to commit, working tree clean", fmt.Errorf("exit status 1"))
	s := newTestSync(t, run)

	require.NoError(t, s.CommitAndPush(context.Background(), "noop"))
	assert.False(t, run.calledWith("push"), "a clean tree must not be pushed")
}

func TestCommitAndPushRejectedIsConflict(t *testing.T) {
	run := newFakeRunner()
	run.on("push", "! [rejected] master -> master (fetch first)", fmt.Errorf("exit status 1"))
	s := newTestSync(t, run)

	err := s.CommitAndPush(context.Background(), "Adding crate 'serde#1.0.0'")
	assert.ErrorIs(t, err, core.ErrConflict)

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "push", conflict.Op)
}

func TestCommitAndPushAuthFailureIsSyncError(t *testing.T) {
	run := newFakeRunner()
	run.on("push", "fatal: Authentication failed", fmt.Errorf("exit status 128"))
	s := newTestSync(t, run)

	err := s.CommitAndPush(context.Background(), "Adding crate 'serde#1.0.0'")
	assert.ErrorIs(t, err, core.ErrSync)
	assert.False(t, errors.Is(err, core.ErrConflict))
}

func TestBackendRegistered(t *testing.T) {
	found := false
	for _, kind := range core.SupportedBackends() {
		if kind == Kind {
			found = true
		}
	}
	assert.True(t, found, "command-line backend must self-register")
}
