package gitinfo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.email", "test@example.com")
	git(t, dir, "config", "user.name", "test")
	return dir
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func TestIsRepo(t *testing.T) {
	dir := initRepo(t)
	assert.True(t, IsRepo(dir))
	assert.False(t, IsRepo(os.TempDir()))
}

func TestHeadCommit(t *testing.T) {
	dir := initRepo(t)
	assert.Equal(t, "", HeadCommit(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "initial")

	commit := HeadCommit(dir)
	assert.Len(t, commit, 40)
}

func TestChangedFiles(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("y = 2\n"), 0o644))
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "initial")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 42\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "b.py")))

	files, err := ChangedFiles(dir, "HEAD")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, files)
}
