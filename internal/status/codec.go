package status

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampFormat is the single timestamp layout used in every file this system writes.
	// Values are always rendered and parsed in UTC, so lexical order equals chronological order.
	TimestampFormat = "2006-01-02T15:04:05"

	// SectionDelimiter separates the sections of a status file; it sits on its own line
	SectionDelimiter = "%%"

	maxSections = 4
)

// Epoch is the always-overdue sentinel given to collections that were never checked
var Epoch = time.Unix(0, 0).UTC()

// FormatTimestamp renders t in the canonical format
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a canonical timestamp as UTC
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampFormat, s, time.UTC)
}

// Truncate normalizes t to the precision the canonical format can carry
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// syncStatusDocument is the on-disk JSON shape of a SyncStatus
type syncStatusDocument struct {
	Status    string `json:"status"`
	Color     string `json:"color"`
	Timestamp string `json:"timestamp,omitempty"`
}

// MarshalSyncStatus renders a summary as the compact JSON document used in status files and caches
func MarshalSyncStatus(s *SyncStatus) ([]byte, error) {
	return json.Marshal(syncStatusDocument{
		Status:    string(s.State),
		Color:     string(s.Color),
		Timestamp: FormatTimestamp(s.Timestamp),
	})
}

// UnmarshalSyncStatus parses a summary document. A missing timestamp yields the zero time.
func UnmarshalSyncStatus(data []byte) (*SyncStatus, error) {
	var doc syncStatusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	state, err := ParseSyncState(doc.Status)
	if err != nil {
		return nil, err
	}
	s := &SyncStatus{
		State: state,
		Color: Color(doc.Color),
	}
	if s.Color == "" {
		s.Color = state.Color()
	}
	if doc.Timestamp != "" {
		ts, err := ParseTimestamp(doc.Timestamp)
		if err != nil {
			return nil, err
		}
		s.Timestamp = ts
	}
	return s, nil
}

// Encode renders a record as a status file document:
//
//	<timestamp> <elapsed>
//	%%
//	<raw status>
//	%%
//	<raw annex status>
//	%%
//	<sync status json>
func Encode(r *Record) string {
	meta := FormatTimestamp(r.Timestamp) + " " + r.Elapsed.String()

	var summary string
	if r.SyncStatus != nil {
		// A three-string struct cannot fail to marshal.
		data, _ := MarshalSyncStatus(r.SyncStatus)
		summary = string(data)
	}

	sep := "\n" + SectionDelimiter + "\n"
	return strings.Join([]string{meta, r.RawStatus, r.RawAnnexStatus, summary}, sep)
}

// Decode parses a status file document produced by Encode.
// Sections beyond the fourth are ignored. An absent or empty summary section decodes to a nil SyncStatus.
func Decode(text string) (*Record, error) {
	return decode("status record", text)
}

func decode(source, text string) (*Record, error) {
	sections := splitSections(text)

	meta := strings.TrimSpace(sections[0])
	if meta == "" {
		return nil, &ParseError{Source: source, Line: 1, Msg: "missing timestamp section"}
	}
	fields := strings.Fields(meta)
	if len(fields) != 2 {
		return nil, &ParseError{Source: source, Line: 1, Msg: "expected \"<timestamp> <elapsed>\", got " + quote(meta)}
	}
	ts, err := ParseTimestamp(fields[0])
	if err != nil {
		return nil, &ParseError{Source: source, Line: 1, Msg: "bad timestamp", Err: err}
	}
	elapsed, err := parseElapsed(fields[1])
	if err != nil {
		return nil, &ParseError{Source: source, Line: 1, Msg: "bad elapsed duration", Err: err}
	}

	r := &Record{
		Timestamp:      ts,
		Elapsed:        elapsed,
		RawStatus:      sections[1],
		RawAnnexStatus: sections[2],
	}

	if summary := strings.TrimSpace(sections[3]); summary != "" {
		s, err := UnmarshalSyncStatus([]byte(summary))
		if err != nil {
			return nil, &ParseError{Source: source, Msg: "bad sync status section", Err: err}
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = ts
		}
		r.SyncStatus = s
	}

	return r, nil
}

// splitSections cuts text at delimiter lines and always returns maxSections entries
func splitSections(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	sections := make([]string, 0, maxSections)
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == SectionDelimiter {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
			continue
		}
		current = append(current, line)
	}
	sections = append(sections, strings.Join(current, "\n"))

	for len(sections) < maxSections {
		sections = append(sections, "")
	}
	return sections[:maxSections]
}

func quote(s string) string {
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return "\"" + s + "\""
}

// parseElapsed accepts a Go duration string or the H:MM:SS[.ffffff] clock
// form used by status files written before this service existed
func parseElapsed(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	if clock, ok := parseClock(s); ok {
		return clock, nil
	}
	return 0, err
}

func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	secs, frac, hasFrac := strings.Cut(parts[2], ".")
	if !digits(parts[0]) || len(parts[1]) != 2 || !digits(parts[1]) || len(secs) != 2 || !digits(secs) {
		return 0, false
	}
	if hasFrac && (len(frac) > 9 || !digits(frac)) {
		return 0, false
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.Atoi(secs)
	if minutes > 59 || seconds > 59 {
		return 0, false
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if hasFrac {
		nanos, _ := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		d += time.Duration(nanos)
	}
	return d, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
