// Package vcs runs the expensive per-collection status check and classifies
// its output into a sync state.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	// DefaultRemote is the remote whose tracking branch is compared against
	DefaultRemote = "origin"

	// DefaultTimeout bounds a single status check
	DefaultTimeout = 2 * time.Minute
)

// Report is the raw output of a status check
type Report struct {
	// RawStatus is a short-format branch and working tree report
	RawStatus string
	// RawAnnexStatus is the attachment store report; empty when annex reporting is off
	RawAnnexStatus string
}

// StatusProvider checks a collection repository
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go StatusProvider
type StatusProvider interface {
	Status(ctx context.Context, collectionPath string) (*Report, error)
}

// ProviderError reports a failed status check
type ProviderError struct {
	Path string
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("status check of %s failed to %s: %v", e.Path, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Option configures the git status provider
type Option func(*gitProvider)

// WithRemote sets the remote used to compute ahead/behind counts
func WithRemote(remote string) Option {
	return func(p *gitProvider) {
		if remote != "" {
			p.remote = remote
		}
	}
}

// WithTimeout bounds each status check
func WithTimeout(d time.Duration) Option {
	return func(p *gitProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAnnex enables the git-annex report
func WithAnnex(runner AnnexRunner) Option {
	return func(p *gitProvider) {
		p.annex = runner
	}
}

type gitProvider struct {
	remote  string
	timeout time.Duration
	annex   AnnexRunner
}

// NewGitStatusProvider creates a StatusProvider reading repositories with go-git
func NewGitStatusProvider(opts ...Option) StatusProvider {
	p := &gitProvider{
		remote:  DefaultRemote,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *gitProvider) Status(ctx context.Context, collectionPath string) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	repo, err := git.PlainOpen(collectionPath)
	if err != nil {
		return nil, &ProviderError{Path: collectionPath, Op: "open repository", Err: err}
	}

	header, err := p.branchHeader(ctx, repo)
	if err != nil {
		return nil, &ProviderError{Path: collectionPath, Op: "read branch", Err: err}
	}

	lines, err := worktreeLines(ctx, repo)
	if err != nil {
		return nil, &ProviderError{Path: collectionPath, Op: "read worktree", Err: err}
	}

	report := &Report{RawStatus: strings.Join(append([]string{header}, lines...), "\n")}

	if p.annex != nil {
		annex, err := p.annex.Info(ctx, collectionPath)
		if err != nil {
			return nil, &ProviderError{Path: collectionPath, Op: "read annex", Err: err}
		}
		report.RawAnnexStatus = annex
	}
	return report, nil
}

// branchHeader renders "## <branch>[...<remote>/<branch> [ahead N, behind M]]"
func (p *gitProvider) branchHeader(ctx context.Context, repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "## No commits yet", nil
		}
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "## HEAD (no branch)", nil
	}

	branch := head.Name().Short()
	upstreamName := p.upstreamRef(repo, branch)
	upstream, err := repo.Reference(upstreamName, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "## " + branch, nil
		}
		return "", fmt.Errorf("failed to resolve %s: %w", upstreamName, err)
	}

	ahead, behind, err := aheadBehind(ctx, repo, head.Hash(), upstream.Hash())
	if err != nil {
		return "", err
	}

	header := fmt.Sprintf("## %s...%s", branch, upstreamName.Short())
	var counts []string
	if ahead > 0 {
		counts = append(counts, fmt.Sprintf("ahead %d", ahead))
	}
	if behind > 0 {
		counts = append(counts, fmt.Sprintf("behind %d", behind))
	}
	if len(counts) > 0 {
		header += " [" + strings.Join(counts, ", ") + "]"
	}
	return header, nil
}

// upstreamRef prefers the branch's configured upstream and falls back to <remote>/<branch>
func (p *gitProvider) upstreamRef(repo *git.Repository, branch string) plumbing.ReferenceName {
	cfg, err := repo.Branch(branch)
	if err == nil && cfg.Remote != "" && cfg.Merge != "" {
		return plumbing.NewRemoteReferenceName(cfg.Remote, cfg.Merge.Short())
	}
	return plumbing.NewRemoteReferenceName(p.remote, branch)
}

// aheadBehind counts commits reachable from one tip but not the other
func aheadBehind(ctx context.Context, repo *git.Repository, local, remote plumbing.Hash) (int, int, error) {
	if local == remote {
		return 0, 0, nil
	}
	localSet, err := ancestors(ctx, repo, local)
	if err != nil {
		return 0, 0, err
	}
	remoteSet, err := ancestors(ctx, repo, remote)
	if err != nil {
		return 0, 0, err
	}

	ahead := 0
	for h := range localSet {
		if _, ok := remoteSet[h]; !ok {
			ahead++
		}
	}
	behind := 0
	for h := range remoteSet {
		if _, ok := localSet[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

func ancestors(ctx context.Context, repo *git.Repository, from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history from %s: %w", from, err)
	}
	defer iter.Close()

	seen := map[plumbing.Hash]struct{}{}
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history from %s: %w", from, err)
	}
	return seen, nil
}

type worktreeResult struct {
	status git.Status
	err    error
}

// worktreeStatus returns when the scan finishes or ctx is done. go-git's scan
// takes no context, so an abandoned scan runs to completion in the background.
func worktreeStatus(ctx context.Context, wt *git.Worktree) (git.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan worktreeResult, 1)
	go func() {
		st, err := wt.Status()
		done <- worktreeResult{status: st, err: err}
	}()

	select {
	case res := <-done:
		return res.status, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// worktreeLines renders one "XY path" line per changed path, sorted by path
func worktreeLines(ctx context.Context, repo *git.Repository) ([]string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	st, err := worktreeStatus(ctx, wt)
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree status: %w", err)
	}

	paths := make([]string, 0, len(st))
	for path, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	lines := make([]string, 0, len(paths))
	for _, path := range paths {
		fs := st[path]
		lines = append(lines, fmt.Sprintf("%c%c %s", byte(fs.Staging), byte(fs.Worktree), path))
	}
	slog.Debug("Worktree status read", "changed", len(lines))
	return lines, nil
}
