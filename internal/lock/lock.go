// Package lock implements the global refresh pause: a file of named holders
// that stops the scheduler while any holder remains.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ddr-tools/gitstatusd/internal/fsutil"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

const (
	// LockFileName is the holder file inside the tmp directory
	LockFileName = "gitstatus-lock"

	guardSuffix = ".flock"
	retryDelay  = 50 * time.Millisecond
)

// ErrInvalidHolder is returned for an empty holder or one spanning several lines
var ErrInvalidHolder = errors.New("invalid lock holder")

// Entry is one holder line of the lock file
type Entry struct {
	Since  time.Time
	Holder string
}

// Coordinator manages the holders of the global refresh lock
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks -source=lock.go Coordinator
type Coordinator interface {
	// Lock adds holder unless it is already present and returns the full lock file contents
	Lock(ctx context.Context, holder string) (string, error)
	// Unlock removes every line of holder and returns the remaining contents
	Unlock(ctx context.Context, holder string) (string, error)
	// Locked returns the current holders; an empty result means unlocked
	Locked(ctx context.Context) ([]Entry, error)
}

type fileCoordinator struct {
	path string

	// mu serializes callers sharing this coordinator; guard only excludes other
	// file descriptors, and flock reports success to a second caller on the same one.
	mu    sync.Mutex
	guard *flock.Flock
}

// NewFileCoordinator creates a Coordinator over <basePath>/tmp/gitstatus-lock
func NewFileCoordinator(basePath string) (Coordinator, error) {
	dir, err := status.TmpDir(basePath)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, LockFileName)
	return &fileCoordinator{
		path:  path,
		guard: flock.New(path + guardSuffix),
	}, nil
}

func (c *fileCoordinator) Lock(ctx context.Context, holder string) (string, error) {
	if err := validateHolder(holder); err != nil {
		return "", err
	}

	var contents string
	err := c.withGuard(ctx, func() error {
		entries, err := c.read()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Holder == holder {
				contents = render(entries)
				return nil
			}
		}
		entries = append(entries, Entry{Since: status.Truncate(time.Now()), Holder: holder})
		contents = render(entries)
		return c.write(contents)
	})
	if err != nil {
		return "", err
	}

	slog.Info("Global refresh lock taken", "holder", holder)
	return contents, nil
}

func (c *fileCoordinator) Unlock(ctx context.Context, holder string) (string, error) {
	if err := validateHolder(holder); err != nil {
		return "", err
	}

	var contents string
	err := c.withGuard(ctx, func() error {
		entries, err := c.read()
		if err != nil {
			return err
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.Holder != holder {
				kept = append(kept, e)
			}
		}
		contents = render(kept)
		if len(kept) == len(entries) {
			return nil
		}
		return c.write(contents)
	})
	if err != nil {
		return "", err
	}

	slog.Info("Global refresh lock released", "holder", holder)
	return contents, nil
}

// Locked reads without the guard; writes are atomic renames so a reader sees either version
func (c *fileCoordinator) Locked(_ context.Context) ([]Entry, error) {
	return c.read()
}

func (c *fileCoordinator) withGuard(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	locked, err := c.guard.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock file guard: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock file guard: %w", ctx.Err())
	}
	defer func() {
		if err := c.guard.Unlock(); err != nil {
			slog.Warn("Failed to release lock file guard", "error", err)
		}
	}()
	return fn()
}

func (c *fileCoordinator) read() ([]Entry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	return Parse(c.path, string(data))
}

func (c *fileCoordinator) write(contents string) error {
	if err := fsutil.AtomicWrite(c.path, []byte(contents), 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Parse reads lock file lines of the form "<timestamp> <holder>". Blank lines are ignored.
func Parse(source, text string) ([]Entry, error) {
	var entries []Entry
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ts, holder, ok := strings.Cut(line, " ")
		if !ok || strings.TrimSpace(holder) == "" {
			return nil, &status.ParseError{Source: source, Line: i + 1, Msg: "expected \"<timestamp> <holder>\""}
		}
		since, err := status.ParseTimestamp(ts)
		if err != nil {
			return nil, &status.ParseError{Source: source, Line: i + 1, Msg: "bad timestamp", Err: err}
		}
		entries = append(entries, Entry{Since: since, Holder: strings.TrimSpace(holder)})
	}
	return entries, nil
}

func render(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(status.FormatTimestamp(e.Since))
		b.WriteByte(' ')
		b.WriteString(e.Holder)
		b.WriteByte('\n')
	}
	return b.String()
}

func validateHolder(holder string) error {
	if holder == "" || strings.ContainsAny(holder, "\n\r") {
		return fmt.Errorf("%w %q", ErrInvalidHolder, holder)
	}
	return nil
}
