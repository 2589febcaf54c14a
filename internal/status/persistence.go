// Package status provides the per-collection status record, its flat-file codec,
// and the on-disk store that holds one record file per collection.
package status

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ddr-tools/gitstatusd/internal/fsutil"
)

const (
	// TmpDirName is the subdirectory of the base path holding all scheduler files
	TmpDirName = "tmp"

	// StatusFileSuffix is appended to the collection identifier to name its status file
	StatusFileSuffix = ".status"
)

var statusFilePattern = regexp.MustCompile(`^\w+-\w+-\d+` + regexp.QuoteMeta(StatusFileSuffix) + `$`)

// StatusPersistence defines the interface for per-collection status record storage
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus atomically replaces the status record of the collection
	SaveStatus(ctx context.Context, collectionPath string, record *Record) error

	// LoadStatus loads the status record of the collection.
	// Returns nil and no error when the collection has not been checked yet.
	LoadStatus(ctx context.Context, collectionPath string) (*Record, error)

	// ListKnown returns the identifiers of all collections that have a status record
	ListKnown(ctx context.Context) ([]string, error)
}

// TmpDir returns the scheduler's working directory under basePath, creating it if absent
func TmpDir(basePath string) (string, error) {
	dir := filepath.Join(basePath, TmpDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tmp directory: %w", err)
	}
	return dir, nil
}

// PathFor returns the status file path of a collection. Only the final path
// segment of collectionPath, the collection identifier, is used.
func PathFor(basePath, collectionPath string) (string, error) {
	dir, err := TmpDir(basePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(collectionPath)+StatusFileSuffix), nil
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence
// rooted at the storage volume's base path
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus encodes the record and writes it through a temp file and rename
func (f *fileStatusPersistence) SaveStatus(_ context.Context, collectionPath string, record *Record) error {
	filePath, err := PathFor(f.basePath, collectionPath)
	if err != nil {
		return err
	}

	text := Encode(record) + "\n"
	if err := fsutil.AtomicWrite(filePath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write status file for collection '%s': %w", filepath.Base(collectionPath), err)
	}
	return nil
}

// LoadStatus reads and decodes the status record of a collection
func (f *fileStatusPersistence) LoadStatus(_ context.Context, collectionPath string) (*Record, error) {
	filePath, err := PathFor(f.basePath, collectionPath)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- filePath is built from the base path and a single path segment
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Not checked yet
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file for collection '%s': %w", filepath.Base(collectionPath), err)
	}

	return decode(filePath, string(data))
}

// ListKnown lists collection identifiers derived from status file names
func (f *fileStatusPersistence) ListKnown(_ context.Context) ([]string, error) {
	dir, err := TmpDir(f.basePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !statusFilePattern.MatchString(entry.Name()) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), StatusFileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}
