// Package gitinfo reads best-effort repository metadata by shelling out to
// git. Anything beyond the current commit id and a changed-file list is out
// of scope.
package gitinfo

import (
	"fmt"
	"os/exec"
	"strings"
)

// IsRepo reports whether dir is inside a git repository.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// HeadCommit returns the current commit id, or "" when unavailable.
// Scans created outside a repository simply carry no commit.
func HeadCommit(dir string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// ChangedFiles returns repository-relative paths changed between baseRef and
// the working tree, deleted files included.
func ChangedFiles(dir, baseRef string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", baseRef)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
