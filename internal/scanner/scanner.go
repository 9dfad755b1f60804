// Package scanner walks a repository for Python source files and narrows
// them to likely web/API entrypoints. Heuristics only; framework-specific
// extraction happens downstream.
package scanner

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// contentProbeBytes bounds how much of a file is read when probing for
// framework needles.
const contentProbeBytes = 200_000

var defaultIgnoreDirs = map[string]struct{}{
	".git":          {},
	".venv":         {},
	"venv":          {},
	"__pycache__":   {},
	"node_modules":  {},
	"dist":          {},
	"build":         {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	".routelens":    {},
}

// Scanner enumerates candidate files under a repository root.
type Scanner struct {
	maxFiles int
}

// New creates a scanner. maxFiles <= 0 means unbounded.
func New(maxFiles int) *Scanner {
	return &Scanner{maxFiles: maxFiles}
}

// PythonFiles returns absolute paths of .py files under root, pruning
// ignored directories. Deterministic: WalkDir visits lexically.
func (s *Scanner) PythonFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, ignored := defaultIgnoreDirs[d.Name()]; ignored {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		out = append(out, abs)
		if s.maxFiles > 0 && len(out) >= s.maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SelectCandidates filters files to likely API entrypoints for the hinted
// framework.
func (s *Scanner) SelectCandidates(files []string, frameworkHint string) []string {
	needles := candidateNeedles(frameworkHint)
	var out []string
	for _, p := range files {
		if FileContainsAny(p, needles) {
			out = append(out, p)
		}
	}
	return out
}

func candidateNeedles(framework string) []string {
	switch framework {
	case "fastapi":
		return []string{"from fastapi import", "FastAPI(", "APIRouter", "@app.", "@router.", "add_api_route"}
	case "flask":
		return []string{"from flask import", "Flask(", "@app.route", "Blueprint("}
	case "django":
		return []string{"from django.urls", "path(", "re_path(", "urlpatterns", "django.http"}
	default:
		return []string{"@app.", "route", "FastAPI(", "Flask(", "django.urls"}
	}
}

// FileContainsAny reports whether a bounded prefix of the file contains any
// of the needles. Unreadable files report false.
func FileContainsAny(path string, needles []string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, contentProbeBytes))
	if err != nil {
		return false
	}
	text := string(data)
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
