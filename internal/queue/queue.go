// Package queue implements the durable refresh schedule: one "next eligible
// check time" per collection, persisted as a sorted text file.
package queue

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ddr-tools/gitstatusd/internal/fsutil"
	"github.com/ddr-tools/gitstatusd/internal/status"
)

// QueueFileName is the queue file name inside the tmp directory
//
//nolint:revive // This name is fine
const QueueFileName = "gitstatus-queue"

const generatedPrefix = "generated"

// ErrMissingQueue is matched by errors.Is when the queue file does not exist
var ErrMissingQueue = errors.New("refresh queue does not exist")

// MissingQueueError reports an absent queue file; callers must regenerate explicitly
type MissingQueueError struct {
	Path string
}

func (e *MissingQueueError) Error() string {
	return fmt.Sprintf("refresh queue %s does not exist; regenerate it", e.Path)
}

// Is makes errors.Is(err, ErrMissingQueue) hold
func (*MissingQueueError) Is(target error) bool {
	return target == ErrMissingQueue
}

// Entry is the next eligible check time of one collection
type Entry struct {
	Next         time.Time
	CollectionID string
}

// Queue is the refresh schedule. Entries are unique by CollectionID. Their order is only
// guaranteed ascending right after Load; use PickNext rather than trusting position 0.
type Queue struct {
	GeneratedAt time.Time
	Entries     []Entry
}

// Len returns the number of scheduled collections
func (q *Queue) Len() int {
	return len(q.Entries)
}

// Find returns the entry for a collection
func (q *Queue) Find(collectionID string) (Entry, bool) {
	for _, e := range q.Entries {
		if e.CollectionID == collectionID {
			return e, true
		}
	}
	return Entry{}, false
}

// Path returns the queue file path, creating the tmp directory if needed
func Path(basePath string) (string, error) {
	dir, err := status.TmpDir(basePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, QueueFileName), nil
}

// Marshal renders the queue file. Entry lines are sorted lexically, which the
// canonical timestamp format makes chronological.
//
//	generated 2014-07-10T10:19:00
//	1970-01-01T00:00:00 ddr-test-231
//	2014-07-10T10:19:01 ddr-test-124
func Marshal(q *Queue) []byte {
	lines := make([]string, 0, len(q.Entries))
	for _, e := range q.Entries {
		lines = append(lines, status.FormatTimestamp(e.Next)+" "+e.CollectionID)
	}
	sort.Strings(lines)

	var b strings.Builder
	b.WriteString(generatedPrefix + " " + status.FormatTimestamp(q.GeneratedAt) + "\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Unmarshal parses a queue file. Blank lines are skipped. When a collection
// appears more than once the earliest time wins.
func Unmarshal(source string, data []byte) (*Queue, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	q := &Queue{}
	index := map[string]int{}
	lineNo := 0
	sawHeader := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &status.ParseError{Source: source, Line: lineNo, Msg: "expected two fields, got " + fmt.Sprint(len(fields))}
		}

		if !sawHeader {
			if fields[0] != generatedPrefix {
				return nil, &status.ParseError{Source: source, Line: lineNo, Msg: "missing \"generated\" header"}
			}
			ts, err := status.ParseTimestamp(fields[1])
			if err != nil {
				return nil, &status.ParseError{Source: source, Line: lineNo, Msg: "bad generated timestamp", Err: err}
			}
			q.GeneratedAt = ts
			sawHeader = true
			continue
		}

		ts, err := status.ParseTimestamp(fields[0])
		if err != nil {
			return nil, &status.ParseError{Source: source, Line: lineNo, Msg: "bad entry timestamp", Err: err}
		}
		id := fields[1]
		if i, ok := index[id]; ok {
			if ts.Before(q.Entries[i].Next) {
				q.Entries[i].Next = ts
			}
			continue
		}
		index[id] = len(q.Entries)
		q.Entries = append(q.Entries, Entry{Next: ts, CollectionID: id})
	}
	if err := scanner.Err(); err != nil {
		return nil, &status.ParseError{Source: source, Msg: "read failed", Err: err}
	}
	if !sawHeader {
		return nil, &status.ParseError{Source: source, Line: 1, Msg: "empty queue file"}
	}
	return q, nil
}

// Load reads the queue file. A missing file yields a *MissingQueueError; there is no implicit creation.
func Load(basePath string) (*Queue, error) {
	path, err := Path(basePath)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is derived from the configured base path
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingQueueError{Path: path}
		}
		return nil, fmt.Errorf("failed to read refresh queue: %w", err)
	}
	return Unmarshal(path, data)
}

// Save atomically replaces the queue file
func Save(basePath string, q *Queue) error {
	path, err := Path(basePath)
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(path, Marshal(q), 0644); err != nil {
		return fmt.Errorf("failed to write refresh queue: %w", err)
	}
	return nil
}
