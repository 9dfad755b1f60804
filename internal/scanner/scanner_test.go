package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPythonFilesSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "")
	writeFile(t, root, "api/users.py", "")
	writeFile(t, root, ".venv/lib/junk.py", "")
	writeFile(t, root, "__pycache__/app.cpython-312.py", "")
	writeFile(t, root, ".routelens/stale.py", "")
	writeFile(t, root, "readme.md", "")

	files, err := New(0).PythonFiles(root)
	require.NoError(t, err)

	rels := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}
	assert.ElementsMatch(t, []string{"app.py", "api/users.py"}, rels)
}

func TestPythonFilesHonorsCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "")
	writeFile(t, root, "b.py", "")
	writeFile(t, root, "c.py", "")

	files, err := New(2).PythonFiles(root)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSelectCandidates(t *testing.T) {
	root := t.TempDir()
	api := writeFile(t, root, "api.py", "from fastapi import FastAPI\napp = FastAPI()\n")
	helper := writeFile(t, root, "helper.py", "def add(a, b):\n    return a + b\n")

	got := New(0).SelectCandidates([]string{api, helper}, "fastapi")
	assert.Equal(t, []string{api}, got)
}

func TestFileContainsAny(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "app.py", "from flask import Flask\n")

	assert.True(t, FileContainsAny(path, []string{"from flask import"}))
	assert.False(t, FileContainsAny(path, []string{"django"}))
	assert.False(t, FileContainsAny(filepath.Join(root, "missing.py"), []string{"x"}))
}

// The whole bounded prefix is probed, not just the first read.
func TestFileContainsAnyProbesFullPrefix(t *testing.T) {
	root := t.TempDir()

	padding := strings.Repeat("# filler\n", 15_000)
	deep := writeFile(t, root, "deep.py", padding+"from fastapi import FastAPI\n")
	assert.True(t, FileContainsAny(deep, []string{"from fastapi import"}))

	beyond := writeFile(t, root, "beyond.py",
		strings.Repeat("x", contentProbeBytes)+"from fastapi import FastAPI\n")
	assert.False(t, FileContainsAny(beyond, []string{"from fastapi import"}))
}
