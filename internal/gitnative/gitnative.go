// Package gitnative implements index synchronization with an embedded git
// implementation instead of shelling out to the git binary. It registers
// itself as the "git2" backend and is behaviorally identical to the
// command-line backend.
package gitnative

import (
	"context"
	"errors"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/rs/zerolog"

	"github.com/agoops/alexandrie/internal/core"
	"github.com/agoops/alexandrie/internal/index"
	"github.com/agoops/alexandrie/internal/remote"
)

// Kind is the configuration name of this backend.
const Kind = "git2"

func init() {
	core.RegisterBackend(Kind, func(cfg core.BackendConfig) (core.Indexer, error) {
		s, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return index.New(remote.Guard(s)), nil
	})
}

// Synchronizer drives a git working tree through go-git.
type Synchronizer struct {
	path   string
	remote string
	branch string
	name   string
	email  string

	repo *git.Repository
	log  zerolog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger used for operation tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Synchronizer) {
		s.log = log
	}
}

// New creates a Synchronizer for the given configuration, cloning the
// remote into the configured path when no repository exists there yet.
func New(cfg core.BackendConfig, opts ...Option) (*Synchronizer, error) {
	if cfg.Remote == "" {
		return nil, &core.ConfigurationError{Field: "index.remote", Reason: "remote URL is not set"}
	}
	if cfg.Path == "" {
		return nil, &core.ConfigurationError{Field: "index.path", Reason: "working tree path is not set"}
	}

	installTransport()

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
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.open(context.Background()); err != nil {
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
// remote branch head, discarding any local divergence.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	err := s.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	default:
		return &core.SyncError{Op: "fetch", Err: err}
	}

	ref, err := s.repo.Reference(plumbing.NewRemoteReferenceName("origin", s.branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return &core.SyncError{Op: "fetch", Err: err}
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return &core.SyncError{Op: "reset", Err: err}
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); err != nil {
		return &core.SyncError{Op: "reset", Err: err}
	}
	return nil
}

// CommitAndPush stages all pending modifications, creates one commit with
// the given message and pushes it to the remote. A clean tree is a no-op.
func (s *Synchronizer) CommitAndPush(ctx context.Context, msg string) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return &core.SyncError{Op: "commit", Err: err}
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return &core.SyncError{Op: "add", Err: err}
	}

	status, err := wt.Status()
	if err != nil {
		return &core.SyncError{Op: "commit", Err: err}
	}
	if status.IsClean() {
		return nil
	}

	if _, err := wt.Commit(msg, &git.CommitOptions{Author: s.signature()}); err != nil {
		return &core.SyncError{Op: "commit", Err: err}
	}

	err = s.repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin"})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case isRejectedPush(err):
		return &core.ConflictError{Op: "push"}
	default:
		return &core.SyncError{Op: "push", Err: err}
	}
}

func (s *Synchronizer) signature() *object.Signature {
	name, email := s.name, s.email
	if name == "" {
		name = "alexandrie"
	}
	if email == "" {
		email = "alexandrie@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// open opens the repository at the configured path, cloning (or, for an
// empty remote, initializing) it first when absent.
func (s *Synchronizer) open(ctx context.Context) error {
	repo, err := git.PlainOpen(s.path)
	if err == nil {
		s.repo = repo
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return &core.SyncError{Op: "open", Err: err}
	}

	s.log.Debug().Str("remote", s.remote).Str("path", s.path).Msg("cloning index")
	repo, err = git.PlainCloneContext(ctx, s.path, false, &git.CloneOptions{
		URL:           s.remote,
		ReferenceName: plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:  true,
	})
	if err == nil {
		s.repo = repo
		return nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return &core.SyncError{Op: "clone", Err: err}
	}

	return s.initEmpty()
}

// initEmpty initializes a fresh repository tracking an empty remote, so the
// first commit-and-push seeds it.
func (s *Synchronizer) initEmpty() error {
	repo, err := git.PlainInit(s.path, false)
	if err != nil {
		return &core.SyncError{Op: "init", Err: err}
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(s.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return &core.SyncError{Op: "init", Err: err}
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{s.remote},
	})
	if err != nil {
		return &core.SyncError{Op: "init", Err: err}
	}

	s.repo = repo
	return nil
}

// isRejectedPush reports whether a push failed because the remote moved
// past the local base.
func isRejectedPush(err error) bool {
	return strings.Contains(err.Error(), "non-fast-forward") ||
		strings.Contains(err.Error(), "cannot lock ref")
}
