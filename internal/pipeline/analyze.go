package pipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"routelens/internal/detector"
	"routelens/internal/extractor"
	"routelens/internal/fingerprint"
	"routelens/internal/gitinfo"
	"routelens/internal/scanner"
	"routelens/internal/storage"
)

// sourceTag labels how routes were extracted.
const sourceTag = "ast"

// Options controls one analysis run.
type Options struct {
	MaxFiles     int
	MaxFileBytes int64
	// GitOnly restricts processing to files changed since GitBase instead
	// of a full repository walk.
	GitOnly bool
	GitBase string
}

// Result summarizes one analysis run. ScanID is 0 when the snapshot failed;
// the analysis itself still succeeded.
type Result struct {
	Framework         string   `json:"framework"`
	Confidence        float64  `json:"confidence"`
	FilesScanned      int      `json:"files_scanned"`
	CandidateFiles    []string `json:"candidate_files"`
	ChangedFiles      int      `json:"changed_files"`
	InsertedRoutes    int      `json:"inserted_routes"`
	RemovedFiles      int      `json:"removed_files"`
	ScanID            int64    `json:"scan_id"`
	SnapshotCount     int      `json:"snapshot_count"`
	DroppedDuplicates int      `json:"dropped_duplicates"`
}

// Analyzer orchestrates the incremental loop: fingerprint, registry check,
// extract on change, replace routes, removal bookkeeping, then scan +
// snapshot. A full run is not one transaction; each write is.
type Analyzer struct {
	repoRoot string
	registry *storage.FileRegistry
	routes   *storage.RouteRepository
	scans    *storage.ScanManager
	fp       *fingerprint.Fingerprinter
}

func NewAnalyzer(store *storage.Store, maxFileBytes int64) *Analyzer {
	routes := storage.NewRouteRepository(store)
	return &Analyzer{
		repoRoot: store.RepoRoot(),
		registry: storage.NewFileRegistry(store),
		routes:   routes,
		scans:    storage.NewScanManager(store, routes),
		fp:       fingerprint.New(maxFileBytes),
	}
}

func (a *Analyzer) Run(ctx context.Context, opts Options) (*Result, error) {
	plan, err := a.discoverStage(opts)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Framework:      plan.framework,
		Confidence:     plan.confidence,
		FilesScanned:   len(plan.pyFiles),
		CandidateFiles: plan.candidateRels,
	}

	if err := a.updateStage(ctx, plan, result); err != nil {
		return nil, err
	}

	a.snapshotStage(ctx, result)
	return result, nil
}

type analyzePlan struct {
	framework     string
	confidence    float64
	pyFiles       []string
	candidates    []string // absolute paths
	candidateRels []string
	changedSet    map[string]struct{} // nil unless GitOnly
}

func (a *Analyzer) discoverStage(opts Options) (*analyzePlan, error) {
	sc := scanner.New(opts.MaxFiles)
	pyFiles, err := sc.PythonFiles(a.repoRoot)
	if err != nil {
		return nil, err
	}

	framework, confidence := detector.Detect(pyFiles)
	candidates := sc.SelectCandidates(pyFiles, framework)

	plan := &analyzePlan{
		framework:  framework,
		confidence: confidence,
		pyFiles:    pyFiles,
	}

	if opts.GitOnly {
		base := opts.GitBase
		if base == "" {
			base = "HEAD~1"
		}
		changed, err := gitinfo.ChangedFiles(a.repoRoot, base)
		if err != nil {
			return nil, err
		}
		plan.changedSet = make(map[string]struct{}, len(changed))
		for _, p := range changed {
			plan.changedSet[filepath.ToSlash(p)] = struct{}{}
		}
	}

	for _, abs := range candidates {
		rel, err := a.relPath(abs)
		if err != nil {
			continue
		}
		if plan.changedSet != nil {
			if _, ok := plan.changedSet[rel]; !ok {
				continue
			}
		}
		plan.candidates = append(plan.candidates, abs)
		plan.candidateRels = append(plan.candidateRels, rel)
	}

	return plan, nil
}

func (a *Analyzer) updateStage(ctx context.Context, plan *analyzePlan, result *Result) error {
	ext := extractorFor(plan.framework)

	candidateSet := make(map[string]struct{}, len(plan.candidateRels))
	for _, rel := range plan.candidateRels {
		candidateSet[rel] = struct{}{}
	}

	if ext != nil {
		for i, abs := range plan.candidates {
			rel := plan.candidateRels[i]

			fpr, err := a.fp.Compute(abs)
			if err != nil {
				// Unreadable counts as absent; the removal pass below
				// handles the bookkeeping.
				delete(candidateSet, rel)
				continue
			}

			status, err := a.registry.Status(ctx, rel)
			if err != nil && err != storage.ErrNotFound {
				return err
			}
			if status != nil && status.SHA256 == fpr.SHA256 {
				continue
			}

			decls, err := ext.ExtractFromFile(abs)
			if err != nil {
				log.Printf("warning: failed to parse %s: %v", rel, err)
				continue
			}

			inserted, err := a.routes.ReplaceForFile(ctx, rel, decls, sourceTag)
			if err != nil {
				return err
			}
			if err := a.registry.Upsert(ctx, &storage.FileRecord{
				RelPath:       rel,
				SHA256:        fpr.SHA256,
				MtimeNs:       fpr.MtimeNs,
				SizeBytes:     fpr.SizeBytes,
				LastScannedAt: nowUnix(),
			}); err != nil {
				return err
			}

			result.ChangedFiles++
			result.InsertedRoutes += inserted
		}
	}

	return a.removalStage(ctx, plan, candidateSet, result)
}

// removalStage drops tracked files that no longer exist or no longer qualify
// as candidates. In git mode only files named by the changed set are
// considered, since the rest of the repository was not walked.
func (a *Analyzer) removalStage(ctx context.Context, plan *analyzePlan, candidateSet map[string]struct{}, result *Result) error {
	tracked, err := a.registry.ListTracked(ctx)
	if err != nil {
		return err
	}

	for _, rel := range tracked {
		if plan.changedSet != nil {
			if _, ok := plan.changedSet[rel]; !ok {
				continue
			}
			if _, err := os.Stat(filepath.Join(a.repoRoot, filepath.FromSlash(rel))); err == nil {
				continue
			}
		} else if _, ok := candidateSet[rel]; ok {
			continue
		}

		if err := a.registry.Remove(ctx, rel); err != nil {
			return err
		}
		result.RemovedFiles++
	}
	return nil
}

func (a *Analyzer) snapshotStage(ctx context.Context, result *Result) {
	commit := gitinfo.HeadCommit(a.repoRoot)

	scanID, err := a.scans.CreateScan(ctx, commit)
	if err != nil {
		log.Printf("warning: scan snapshot failed: %v", err)
		return
	}
	count, dropped, err := a.scans.SnapshotEndpoints(ctx, scanID)
	if err != nil {
		log.Printf("warning: scan snapshot failed: %v", err)
		return
	}
	if dropped > 0 {
		log.Printf("snapshot: %d duplicate endpoint declaration(s) collapsed", dropped)
	}

	result.ScanID = scanID
	result.SnapshotCount = count
	result.DroppedDuplicates = dropped
}

func nowUnix() int64 { return time.Now().Unix() }

func (a *Analyzer) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(a.repoRoot, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// extractorFor returns nil for frameworks without route extraction support;
// the run still records a scan so diffs stay meaningful.
func extractorFor(framework string) *extractor.Extractor {
	switch framework {
	case "fastapi", "flask":
		ext, err := extractor.NewExtractor("python")
		if err != nil {
			return nil
		}
		return ext
	}
	return nil
}
