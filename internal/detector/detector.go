// Package detector labels a repository with the web framework its Python
// files most likely use. Deterministic and fast; no code execution.
package detector

import (
	"routelens/internal/scanner"
)

const sampleLimit = 200

// Detect scores framework needles over a bounded sample of files and returns
// (framework, confidence). Frameworks: "fastapi", "flask", "django",
// "unknown".
func Detect(pyFiles []string) (string, float64) {
	sample := pyFiles
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}

	scores := map[string]int{}
	for _, p := range sample {
		if scanner.FileContainsAny(p, []string{"from fastapi import", "FastAPI(", "APIRouter"}) {
			scores["fastapi"] += 3
		}
		if scanner.FileContainsAny(p, []string{"from flask import", "Flask(", "@app.route", "Blueprint("}) {
			scores["flask"] += 2
		}
		if scanner.FileContainsAny(p, []string{"from django.urls", "urlpatterns", "path(", "re_path("}) {
			scores["django"] += 2
		}
	}

	if len(scores) == 0 {
		return "unknown", 0.2
	}

	best, top, total := "unknown", 0, 0
	for _, fw := range []string{"fastapi", "flask", "django"} {
		n := scores[fw]
		total += n
		if n > top {
			best, top = fw, n
		}
	}
	if top == 0 {
		return "unknown", 0.2
	}

	confidence := float64(top) / float64(total)
	if confidence < 0.3 {
		confidence = 0.3
	}
	if confidence > 0.99 {
		confidence = 0.99
	}
	return best, confidence
}
