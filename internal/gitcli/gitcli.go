// Package gitcli implements index synchronization through invocations of
// the "git" shell command. It registers itself as the "command-line"
// backend.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agoops/alexandrie/internal/core"
	"github.com/agoops/alexandrie/internal/index"
	"github.com/agoops/alexandrie/internal/remote"
)

// Kind is the configuration name of this backend.
const Kind = "command-line"

func init() {
	core.RegisterBackend(Kind, func(cfg core.BackendConfig) (core.Indexer, error) {
		s, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return index.New(remote.Guard(s)), nil
	})
}

// runFunc executes git with the given arguments inside dir and returns its
// combined output. Injectable so tests never spawn real processes.
type runFunc func(ctx context.Context, dir string, args ...string) (string, error)

// Synchronizer drives a git working tree by shelling out to the git binary.
type Synchronizer struct {
	path   string
	remote string
	branch string
	name   string
	email  string

	run runFunc
	log zerolog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithRunner replaces the git process runner.
func WithRunner(run runFunc) Option {
	return func(s *Synchronizer) {
		s.run = run
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Synchronizer) {
		s.log = log
	}
}

// New creates a Synchronizer for the given configuration, cloning the
// remote into the configured path when no working tree exists there yet.
func New(cfg core.BackendConfig, opts ...Option) (*Synchronizer, error) {
	if cfg.Remote == "" {
		return nil, &core.ConfigurationError{Field: "index.remote", Reason: "remote URL is not set"}
	}
	if cfg.Path == "" {
		return nil, &core.ConfigurationError{Field: "index.path", Reason: "working tree path is not set"}
	}

	branch := cfg.Branch
	if branch == "" {
		branch = "master"
	}

	s := &Synchronizer{
		path:   cfg.Path,
		remote: cfg.Remote,
		branch: branch,
		name:   cfg.AuthorName,
		email:  cfg.AuthorEmail,
		run:    runGit,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureClone(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// URL returns the configured remote location.
func (s *Synchronizer) URL() (string, error) {
	if s.remote == "" {
		return "", &core.ConfigurationError{Field: "index.remote", Reason: "remote URL is not set"}
	}
	return s.remote, nil
}

// Root returns the path of the local working tree.
func (s *Synchronizer) Root() string {
	return s.path
}

// Refresh fetches the remote and hard-resets the working tree onto the
// remote branch head, discarding any local divergence. This is what makes
// the retry loop a compare-and-swap: a retried mutation always starts from
// the state the remote actually holds.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if _, err := s.git(ctx, "fetch", "origin"); err != nil {
		return &core.SyncError{Op: "fetch", Err: err}
	}

	// A freshly initialized remote has no branch head to reset onto yet.
	// With --quiet, rev-parse fails silently for an absent ref; anything
	// it does print means the repository itself is unhealthy.
	ref := "refs/remotes/origin/" + s.branch
	if out, err := s.git(ctx, "rev-parse", "--verify", "--quiet", ref); err != nil {
		if strings.TrimSpace(out) != "" {
			return &core.SyncError{Op: "rev-parse", Err: err}
		}
		return nil
	}

	if _, err := s.git(ctx, "reset", "--hard", ref); err != nil {
		return &core.SyncError{Op: "reset", Err: err}
	}
	return nil
}

// CommitAndPush stages all pending modifications, creates one commit with
// the given message and pushes it to the remote. A clean tree is a no-op.
func (s *Synchronizer) CommitAndPush(ctx context.Context, msg string) error {
	if _, err := s.git(ctx, "add", "--all"); err != nil {
		return &core.SyncError{Op: "add", Err: err}
	}

	args := []string{}
	if s.name != "" {
		args = append(args, "-c", "user.name="+s.name)
	}
	if s.email != "" {
		args = append(args, "-c", "user.email="+s.email)
	}
	args = append(args, "commit", "-m", msg)

	if out, err := s.git(ctx, args...); err != nil {
		if strings.Contains(out, "nothing to commit") {
			return nil
		}
		return &core.SyncError{Op: "commit", Err: err}
	}

	out, err := s.git(ctx, "push", "origin", s.branch)
	if err != nil {
		if isRejectedPush(out) {
			return &core.ConflictError{Op: "push"}
		}
		return &core.SyncError{Op: "push", Err: err}
	}
	return nil
}

// ensureClone clones the remote when the configured path holds no
// repository yet, otherwise leaves the existing working tree alone.
func (s *Synchronizer) ensureClone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.path, ".git")); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &core.SyncError{Op: "clone", Err: err}
	}
	if out, err := s.run(ctx, "", "clone", "--branch", s.branch, "--single-branch", s.remote, s.path); err != nil {
		// Cloning an empty remote fails; initialize locally and track it.
		// Every other clone failure is surfaced to the caller.
		if !isEmptyRemoteClone(out) {
			return &core.SyncError{Op: "clone", Err: err}
		}
		if err := s.initEmpty(ctx); err != nil {
			return err
		}
	}
	return nil
}

// isEmptyRemoteClone reports whether git's clone output indicates a
// reachable remote that simply has no branch to check out yet.
func isEmptyRemoteClone(out string) bool {
	return strings.Contains(out, "not found in upstream") ||
		strings.Contains(out, "cloned an empty repository")
}

func (s *Synchronizer) initEmpty(ctx context.Context) error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return &core.SyncError{Op: "init", Err: err}
	}
	steps := [][]string{
		{"init", "--initial-branch", s.branch},
		{"remote", "add", "origin", s.remote},
	}
	for _, args := range steps {
		if _, err := s.git(ctx, args...); err != nil {
			return &core.SyncError{Op: "init", Err: err}
		}
	}
	return nil
}

func (s *Synchronizer) git(ctx context.Context, args ...string) (string, error) {
	s.log.Debug().Str("command", "git").Strs("args", args).Msg("executing command")
	return s.run(ctx, s.path, args...)
}

// isRejectedPush reports whether git's push output indicates the remote
// moved past the local base, the retriable compare-and-swap failure.
func isRejectedPush(out string) bool {
	return strings.Contains(out, "[rejected]") ||
		strings.Contains(out, "non-fast-forward") ||
		strings.Contains(out, "fetch first")
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(buf.String()))
	}
	return buf.String(), nil
}
