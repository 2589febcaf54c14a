// Package collection enumerates the collections stored under a base path and
// answers whether a collection is locked for editing.
package collection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EditLockFileName is the per-collection lock file written by editing tasks
const EditLockFileName = "lock"

var idPattern = regexp.MustCompile(`^(\w+)-(\w+)-(\d+)$`)

// Ref identifies one collection on disk
type Ref struct {
	// ID is the collection identifier, e.g. ddr-test-123
	ID string

	// Path is the absolute path of the collection repository
	Path string
}

// Directory enumerates existing collections for a repo/org pair
type Directory interface {
	List(ctx context.Context, repo, org string) ([]Ref, error)
}

// LockQuery reports whether a collection is locked for editing by another process.
// This lock is unrelated to the scheduler's own locks.
type LockQuery interface {
	IsEditLocked(ctx context.Context, collectionID string) (bool, error)
}

// ValidID reports whether id has the <repo>-<org>-<number> shape
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ParseID splits a collection identifier into its repo, org and numeric parts
func ParseID(id string) (repo, org string, number int, err error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid collection id %q", id)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid collection number in %q: %w", id, err)
	}
	return m[1], m[2], number, nil
}

// SplitRepoOrg splits a "repo-org" pair such as "ddr-densho"
func SplitRepoOrg(pair string) (repo, org string, err error) {
	repo, org, ok := strings.Cut(pair, "-")
	if !ok || repo == "" || org == "" || strings.Contains(org, "-") {
		return "", "", fmt.Errorf("invalid repo-org pair %q", pair)
	}
	return repo, org, nil
}

// fsDirectory lists collection directories directly under basePath
type fsDirectory struct {
	basePath string
}

// NewFSDirectory creates a Directory over the collections stored in basePath
func NewFSDirectory(basePath string) Directory {
	return &fsDirectory{basePath: basePath}
}

// List returns the collections of repo/org ordered by collection number
func (d *fsDirectory) List(_ context.Context, repo, org string) ([]Ref, error) {
	entries, err := os.ReadDir(d.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection directory: %w", err)
	}

	type numbered struct {
		ref    Ref
		number int
	}
	var found []numbered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, o, n, err := ParseID(entry.Name())
		if err != nil || r != repo || o != org {
			continue
		}
		found = append(found, numbered{
			ref:    Ref{ID: entry.Name(), Path: filepath.Join(d.basePath, entry.Name())},
			number: n,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].number < found[j].number })
	refs := make([]Ref, 0, len(found))
	for _, f := range found {
		refs = append(refs, f.ref)
	}
	return refs, nil
}

// fileLockQuery checks for a non-empty lock file inside the collection
type fileLockQuery struct {
	basePath string
}

// NewFileLockQuery creates a LockQuery that inspects <basePath>/<id>/lock
func NewFileLockQuery(basePath string) LockQuery {
	return &fileLockQuery{basePath: basePath}
}

func (q *fileLockQuery) IsEditLocked(_ context.Context, collectionID string) (bool, error) {
	if !ValidID(collectionID) {
		return false, fmt.Errorf("invalid collection id %q", collectionID)
	}
	info, err := os.Stat(filepath.Join(q.basePath, collectionID, EditLockFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat edit lock of '%s': %w", collectionID, err)
	}
	return info.Size() > 0, nil
}
