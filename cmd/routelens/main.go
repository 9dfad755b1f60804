package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"routelens/internal/config"
	"routelens/internal/detector"
	"routelens/internal/graph"
	"routelens/internal/pipeline"
	"routelens/internal/scanner"
	"routelens/internal/storage"
	"routelens/internal/testplan"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "routelens",
		Short: "Incremental HTTP API surface indexer and differ",
	}
	dbPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the index database (default <repo>/.routelens/index.db)")

	rootCmd.AddCommand(analyzeCmd)

	endpointsCmd.AddCommand(endpointsListCmd)
	rootCmd.AddCommand(endpointsCmd)

	scansCmd.AddCommand(scansListCmd)
	rootCmd.AddCommand(scansCmd)

	rootCmd.AddCommand(diffCmd)

	graphCmd.AddCommand(graphExportCmd)
	graphCmd.AddCommand(graphStatsCmd)
	rootCmd.AddCommand(graphCmd)

	rootCmd.AddCommand(testplanCmd)
}

// repoRootFromArgs resolves the optional positional repo argument.
func repoRootFromArgs(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repo path does not exist: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repo path is not a directory: %s", abs)
	}
	return abs, nil
}

// openStore opens the per-repo store, honoring the --db flag and config.
func openStore(ctx context.Context, repoRoot string) (*storage.Store, *config.Config, string, error) {
	cfg, err := config.Load(filepath.Join(repoRoot, "routelens.yaml"))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	path := dbPath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		path = storage.DBPathForRepo(repoRoot)
	}

	store, err := storage.Open(ctx, path, repoRoot)
	if err != nil {
		return nil, nil, "", err
	}
	return store, cfg, path, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode JSON: %v", err)
	}
	fmt.Println(string(data))
}

func renderTable(header []string, rows [][]string) {
	data := pterm.TableData{header}
	data = append(data, rows...)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		log.Printf("Failed to render table: %v", err)
	}
}

var (
	analyzeMaxFiles int
	analyzeGit      bool
	analyzeGitBase  string

	analyzeCmd = &cobra.Command{
		Use:   "analyze [path]",
		Short: "Index the repository's API surface and record a scan",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			repoRoot, err := repoRootFromArgs(args)
			if err != nil {
				log.Fatalf("%v", err)
			}

			ctx := context.Background()
			store, cfg, path, err := openStore(ctx, repoRoot)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()

			fmt.Printf("📂 Analyzing repository: %s\n", repoRoot)

			maxFiles := analyzeMaxFiles
			if maxFiles == 0 {
				maxFiles = cfg.Scan.MaxFiles
			}

			start := time.Now()
			analyzer := pipeline.NewAnalyzer(store, cfg.Scan.MaxFileBytes)
			result, err := analyzer.Run(ctx, pipeline.Options{
				MaxFiles:     maxFiles,
				MaxFileBytes: cfg.Scan.MaxFileBytes,
				GitOnly:      analyzeGit,
				GitBase:      analyzeGitBase,
			})
			if err != nil {
				log.Fatalf("Analyze failed: %v", err)
			}

			fmt.Printf("✅ Done in %v.\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("Detected framework: %s (confidence=%.2f)\n", result.Framework, result.Confidence)
			fmt.Printf("Python files scanned: %d\n", result.FilesScanned)
			fmt.Printf("Candidate API files: %d\n", len(result.CandidateFiles))
			fmt.Printf("Changed files: %d\n", result.ChangedFiles)
			fmt.Printf("Inserted routes: %d\n", result.InsertedRoutes)
			fmt.Printf("Removed files: %d\n", result.RemovedFiles)
			fmt.Printf("DB: %s\n", path)

			if result.ScanID != 0 {
				fmt.Printf("Scan saved: %d (%d endpoints", result.ScanID, result.SnapshotCount)
				if result.DroppedDuplicates > 0 {
					fmt.Printf(", %d duplicates collapsed", result.DroppedDuplicates)
				}
				fmt.Println(")")
				fmt.Println("Tip: run 'routelens diff --last' to see changes.")
			} else {
				pterm.Warning.Println("Scan snapshot failed (analyze still succeeded).")
			}
		},
	}
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Query the stored route table",
}

var (
	epMethod, epPath, epPathContains, epFileContains, epHandlerContains, epFormat string
	epLimit                                                                      int

	endpointsListCmd = &cobra.Command{
		Use:   "list [path]",
		Short: "List stored routes with optional filters",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			repoRoot, err := repoRootFromArgs(args)
			if err != nil {
				log.Fatalf("%v", err)
			}

			ctx := context.Background()
			store, _, path, err := openStore(ctx, repoRoot)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()

			routes := storage.NewRouteRepository(store)
			rows, err := routes.Query(ctx, storage.RouteFilter{
				Method:          epMethod,
				HTTPPath:        epPath,
				PathContains:    epPathContains,
				FileContains:    epFileContains,
				HandlerContains: epHandlerContains,
				Limit:           epLimit,
			})
			if err != nil {
				log.Fatalf("Query failed: %v", err)
			}

			if epFormat == "json" {
				printJSON(rows)
				return
			}

			fmt.Printf("DB: %s\n", path)
			fmt.Printf("Routes: %d (showing up to %d)\n", len(rows), epLimit)

			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{
					r.Method,
					r.HTTPPath,
					r.HandlerName,
					fmt.Sprintf("%s:%d", r.RelPath, r.DeclLine),
					r.Source,
				})
			}
			renderTable([]string{"METHOD", "PATH", "HANDLER", "FILE:LINE", "SRC"}, table)
		},
	}
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Inspect recorded scans",
}

var (
	scansLimit int

	scansListCmd = &cobra.Command{
		Use:   "list [path]",
		Short: "List scans, newest first",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			repoRoot, err := repoRootFromArgs(args)
			if err != nil {
				log.Fatalf("%v", err)
			}

			ctx := context.Background()
			store, _, path, err := openStore(ctx, repoRoot)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()

			routes := storage.NewRouteRepository(store)
			scans := storage.NewScanManager(store, routes)
			list, err := scans.ListScans(ctx, scansLimit)
			if err != nil {
				log.Fatalf("Failed to list scans: %v", err)
			}

			fmt.Printf("DB: %s\n", path)
			table := make([][]string, 0, len(list))
			for _, s := range list {
				commit := s.GitCommit
				if commit == "" {
					commit = "-"
				}
				table = append(table, []string{
					strconv.FormatInt(s.ScanID, 10),
					time.Unix(s.CreatedAt, 0).UTC().Format("2006-01-02T15:04:05Z"),
					commit,
				})
			}
			renderTable([]string{"SCAN_ID", "CREATED_AT (UTC)", "GIT_COMMIT"}, table)
		},
	}
)

var (
	diffLast         bool
	diffFrom, diffTo int64
	diffFormat       string
	diffLimit        int

	diffCmd = &cobra.Command{
		Use:   "diff [path]",
		Short: "Diff the endpoint sets of two scans",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			repoRoot, err := repoRootFromArgs(args)
			if err != nil {
				log.Fatalf("%v", err)
			}

			ctx := context.Background()
			store, _, path, err := openStore(ctx, repoRoot)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()

			routes := storage.NewRouteRepository(store)
			scans := storage.NewScanManager(store, routes)

			fromID, toID := diffFrom, diffTo
			if diffLast {
				list, err := scans.ListScans(ctx, 2)
				if err != nil {
					log.Fatalf("Failed to list scans: %v", err)
				}
				if len(list) < 2 {
					log.Fatalf("Only %d scan(s) found. Run 'routelens analyze' at least twice, then diff.", len(list))
				}
				toID = list[0].ScanID
				fromID = list[1].ScanID
			} else if fromID == 0 || toID == 0 {
				log.Fatalf("Provide --last OR both --from and --to.")
			}

			engine := storage.NewDiffEngine(scans)
			d, err := engine.Diff(ctx, fromID, toID)
			if err != nil {
				log.Fatalf("Diff failed: %v", err)
			}

			if diffFormat == "json" {
				printJSON(d)
				return
			}

			fmt.Printf("DB: %s\n", path)
			fmt.Printf("Diff from scan %d -> %d\n\n", fromID, toID)

			printDiffSection("Added", len(d.Added),
				[]string{"METHOD", "PATH", "FILE", "HANDLER"},
				snapshotRows(d.Added))
			printDiffSection("Removed", len(d.Removed),
				[]string{"METHOD", "PATH", "FILE", "HANDLER"},
				snapshotRows(d.Removed))

			moved := make([][]string, 0, len(d.Moved))
			for _, m := range d.Moved {
				moved = append(moved, []string{m.Method, m.HTTPPath, m.FromRelPath, m.ToRelPath, m.FromHandler, m.ToHandler})
			}
			printDiffSection("Moved", len(d.Moved),
				[]string{"METHOD", "PATH", "FROM_FILE", "TO_FILE", "FROM_HANDLER", "TO_HANDLER"}, moved)

			changed := make([][]string, 0, len(d.HandlerChanged))
			for _, h := range d.HandlerChanged {
				changed = append(changed, []string{h.Method, h.HTTPPath, h.RelPath, h.FromHandler, h.ToHandler})
			}
			printDiffSection("Handler changed", len(d.HandlerChanged),
				[]string{"METHOD", "PATH", "FILE", "FROM_HANDLER", "TO_HANDLER"}, changed)
		},
	}
)

func snapshotRows(snaps []storage.EndpointSnapshot) [][]string {
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []string{s.Method, s.HTTPPath, s.RelPath, s.HandlerName})
	}
	return rows
}

func printDiffSection(title string, total int, header []string, rows [][]string) {
	fmt.Printf("%s: %d\n", title, total)
	if len(rows) > diffLimit {
		rows = rows[:diffLimit]
	}
	renderTable(header, rows)
	if total > diffLimit {
		fmt.Printf("  … and %d more\n", total-diffLimit)
	}
	fmt.Println()
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build the endpoint graph from the stored route table",
}

var (
	graphFormat string

	graphExportCmd = &cobra.Command{
		Use:   "export [path]",
		Short: "Export the endpoint graph (json or dot)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result := buildGraph(args)
			switch graphFormat {
			case "dot":
				fmt.Print(result.DOT())
			default:
				printJSON(result.Export())
			}
		},
	}

	graphStatsCmd = &cobra.Command{
		Use:   "stats [path]",
		Short: "Summarize the endpoint graph",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result := buildGraph(args)
			s := result.Graph.Stats()
			fmt.Printf("Nodes: endpoints=%d, files=%d, handlers=%d\n", s.Endpoints, s.Files, s.Handlers)
			fmt.Printf("Edges: DECLARES=%d, HANDLES=%d\n", s.DeclaresEdges, s.HandlesEdges)
		},
	}
)

var (
	testplanRoot   string
	testplanFormat string

	testplanCmd = &cobra.Command{
		Use:   "testplan [path]",
		Short: "Plan generated test files for the stored route table",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			repoRoot, err := repoRootFromArgs(args)
			if err != nil {
				log.Fatalf("%v", err)
			}

			ctx := context.Background()
			store, _, _, err := openStore(ctx, repoRoot)
			if err != nil {
				log.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()

			pyFiles, err := scanner.New(0).PythonFiles(repoRoot)
			if err != nil {
				log.Fatalf("Failed to walk repository: %v", err)
			}
			framework, _ := detector.Detect(pyFiles)

			routes := storage.NewRouteRepository(store)
			rows, err := routes.Query(ctx, storage.RouteFilter{Limit: 1_000_000})
			if err != nil {
				log.Fatalf("Query failed: %v", err)
			}

			plan := testplan.Build(testplan.NormalizeRoutes(rows, framework), testplanRoot)

			if testplanFormat == "json" {
				printJSON(plan)
				return
			}

			fmt.Printf("Planned test files: %d (root %s)\n", len(plan.Files), plan.GeneratedRoot)
			table := make([][]string, 0)
			for _, f := range plan.Files {
				for _, e := range f.Endpoints {
					table = append(table, []string{f.RelPath, e.TestName, e.Method, e.Path})
				}
			}
			renderTable([]string{"TEST_FILE", "TEST_NAME", "METHOD", "PATH"}, table)
		},
	}
)

func buildGraph(args []string) *graph.BuildResult {
	repoRoot, err := repoRootFromArgs(args)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	store, _, _, err := openStore(ctx, repoRoot)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	routes := storage.NewRouteRepository(store)
	rows, err := routes.Query(ctx, storage.RouteFilter{Limit: 1_000_000})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	return graph.BuildEndpointGraph(rows)
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeMaxFiles, "max-files", 0, "Limit scanned files (0 = config/unbounded)")
	analyzeCmd.Flags().BoolVar(&analyzeGit, "git", false, "Only process files changed in git")
	analyzeCmd.Flags().StringVar(&analyzeGitBase, "git-base", "HEAD~1", "Git base revision (used with --git)")

	endpointsListCmd.Flags().StringVar(&epMethod, "method", "", "Filter by HTTP method (GET/POST/...)")
	endpointsListCmd.Flags().StringVar(&epPath, "path", "", "Filter by exact HTTP path")
	endpointsListCmd.Flags().StringVar(&epPathContains, "path-contains", "", "Substring match on HTTP path")
	endpointsListCmd.Flags().StringVar(&epFileContains, "file-contains", "", "Substring match on file path")
	endpointsListCmd.Flags().StringVar(&epHandlerContains, "handler-contains", "", "Substring match on handler name")
	endpointsListCmd.Flags().IntVar(&epLimit, "limit", 200, "Max rows to print")
	endpointsListCmd.Flags().StringVar(&epFormat, "format", "table", "Output format: table|json")

	scansListCmd.Flags().IntVar(&scansLimit, "limit", 20, "How many scans to show")

	diffCmd.Flags().BoolVar(&diffLast, "last", false, "Diff latest scan vs previous scan")
	diffCmd.Flags().Int64Var(&diffFrom, "from", 0, "From scan id")
	diffCmd.Flags().Int64Var(&diffTo, "to", 0, "To scan id")
	diffCmd.Flags().StringVar(&diffFormat, "format", "table", "Output format: table|json")
	diffCmd.Flags().IntVar(&diffLimit, "limit", 50, "Max rows per section to print")

	graphExportCmd.Flags().StringVar(&graphFormat, "format", "json", "Output format: json|dot")

	testplanCmd.Flags().StringVar(&testplanRoot, "root", testplan.DefaultGeneratedRoot, "Directory generated tests are planned under")
	testplanCmd.Flags().StringVar(&testplanFormat, "format", "table", "Output format: table|json")
}
