package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Gateway is the version-control surface the publish pipeline depends on.
// Unavailable builds a Gateway whose every call reports a startup failure,
// so callers check Available instead of relying on ambient process state.
type Gateway interface {
	Available() error
	Pull(ctx context.Context) error
	Add(paths ...string) error
	Commit(message string) (string, error)
	Push(ctx context.Context) error
}

type Options struct {
	Dir         string
	PullRemote  string
	PushRemote  string
	Branch      string
	AuthorName  string
	AuthorEmail string
}

// Service wraps one working copy tracking a single remote branch pair. All
// operations serialize on an internal mutex; the worktree is a single-writer
// resource.
type Service struct {
	mu   sync.Mutex
	repo *git.Repository
	opts Options
}

func Open(opts Options) (*Service, error) {
	repo, err := git.PlainOpen(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("open working copy %s: %w", opts.Dir, err)
	}
	if _, err := repo.Remote(opts.PullRemote); err != nil {
		return nil, fmt.Errorf("resolve pull remote %s: %w", opts.PullRemote, err)
	}
	if _, err := repo.Remote(opts.PushRemote); err != nil {
		return nil, fmt.Errorf("resolve push remote %s: %w", opts.PushRemote, err)
	}
	if _, err := repo.Reference(plumbing.NewBranchReferenceName(opts.Branch), true); err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", opts.Branch, err)
	}
	return &Service{repo: repo, opts: opts}, nil
}

func (s *Service) Available() error {
	return nil
}

func (s *Service) Pull(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    s.opts.PullRemote,
		ReferenceName: plumbing.NewBranchReferenceName(s.opts.Branch),
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s/%s: %w", s.opts.PullRemote, s.opts.Branch, err)
	}
	return nil
}

func (s *Service) Add(paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	for _, path := range paths {
		if _, err := worktree.Add(path); err != nil {
			return fmt.Errorf("git add %s: %w", path, err)
		}
	}
	return nil
}

func (s *Service) Commit(message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	worktree, err := s.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.opts.AuthorName,
			Email: s.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String()[:7], nil
}

func (s *Service) Push(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", s.opts.Branch, s.opts.Branch))
	err := s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: s.opts.PushRemote,
		RefSpecs:   []gitconfig.RefSpec{refspec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s/%s: %w", s.opts.PushRemote, s.opts.Branch, err)
	}
	return nil
}

// Unavailable returns a Gateway that reports the given initialization error
// from every call. The pipeline injects it when the working copy could not
// be opened at startup, so operations fail uniformly instead of partially.
func Unavailable(err error) Gateway {
	return unavailable{err: err}
}

type unavailable struct {
	err error
}

func (u unavailable) fail() error {
	return fmt.Errorf("version control unavailable: %w", u.err)
}

func (u unavailable) Available() error {
	return u.fail()
}

func (u unavailable) Pull(ctx context.Context) error {
	return u.fail()
}

func (u unavailable) Add(paths ...string) error {
	return u.fail()
}

func (u unavailable) Commit(message string) (string, error) {
	return "", u.fail()
}

func (u unavailable) Push(ctx context.Context) error {
	return u.fail()
}
