package vcs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ddr-tools/gitstatusd/internal/status"
)

// headerPattern matches the branch line of a short status report:
//
//	## master...origin/master [ahead 1, behind 2]
var headerPattern = regexp.MustCompile(`^## (.+?)(?:\.\.\.(\S+))?(?: \[([^\]]*)\])?$`)

// BranchStatus is the parsed form of a short status report
type BranchStatus struct {
	Branch     string
	Upstream   string
	Ahead      int
	Behind     int
	Conflicted bool
	// Changed counts tracked paths with staged or unstaged modifications
	Changed int
	// Untracked counts paths unknown to the index
	Untracked int
}

// ParseShortStatus reads the "## branch...upstream [ahead N, behind M]" header
// and the two-letter path codes that follow it. Unrecognized lines are ignored.
func ParseShortStatus(raw string) BranchStatus {
	var bs BranchStatus
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "## ") {
			parseHeader(line, &bs)
			continue
		}
		if len(line) < 3 || line[2] != ' ' {
			continue
		}
		code := line[:2]
		switch {
		case code == "??":
			bs.Untracked++
		case code == "!!":
		case isConflict(code):
			bs.Conflicted = true
			bs.Changed++
		default:
			bs.Changed++
		}
	}
	return bs
}

func parseHeader(line string, bs *BranchStatus) {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	bs.Branch = m[1]
	bs.Upstream = m[2]
	for _, part := range strings.Split(m[3], ",") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "ahead":
			bs.Ahead = n
		case "behind":
			bs.Behind = n
		}
	}
}

// isConflict reports the unmerged XY codes: DD AU UD UA DU AA UU
func isConflict(code string) bool {
	return strings.ContainsRune(code, 'U') || code == "AA" || code == "DD"
}

// Synced reports a branch that tracks an upstream, has no unpushed or
// unpulled commits and no modified tracked paths. Untracked files are ignored.
func (bs BranchStatus) Synced() bool {
	return bs.Upstream != "" && bs.Ahead == 0 && bs.Behind == 0 && !bs.Conflicted && bs.Changed == 0
}

// Classify maps a short status report onto a SyncState. The first matching
// rule wins: ahead, behind, diverged, conflicted, synced, edit-locked, unknown.
// A repository that is ahead and also locked for editing reports ahead.
func Classify(rawStatus string, editLocked bool) status.SyncState {
	bs := ParseShortStatus(rawStatus)
	switch {
	case bs.Ahead > 0 && bs.Behind == 0:
		return status.SyncStateAhead
	case bs.Behind > 0 && bs.Ahead == 0:
		return status.SyncStateBehind
	case bs.Ahead > 0 && bs.Behind > 0:
		return status.SyncStateDiverged
	case bs.Conflicted:
		return status.SyncStateConflicted
	case bs.Synced():
		return status.SyncStateSynced
	case editLocked:
		return status.SyncStateLocked
	default:
		return status.SyncStateUnknown
	}
}
