package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// AnnexRunner produces the attachment store report of a collection
type AnnexRunner interface {
	Info(ctx context.Context, collectionPath string) (string, error)
}

// execAnnex shells out to git-annex, which has no Go implementation
type execAnnex struct {
	binary string
	args   []string
}

// NewAnnexRunner runs "git annex info --fast" in the collection
func NewAnnexRunner() AnnexRunner {
	return &execAnnex{binary: "git", args: []string{"annex", "info", "--fast"}}
}

func (a *execAnnex) Info(ctx context.Context, collectionPath string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binary, a.args...)
	cmd.Dir = collectionPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s %s failed: %w: %s",
				a.binary, strings.Join(a.args, " "), err, strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("%s %s failed: %w", a.binary, strings.Join(a.args, " "), err)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}
