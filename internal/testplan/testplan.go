// Package testplan derives deterministic test scaffolding plans from the
// stored route set: endpoints grouped per declaring file, each with a stable
// generated test-file path and test name. Planning only; no files are
// written.
package testplan

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"routelens/internal/storage"
)

// DefaultGeneratedRoot is where generated test files would land, relative to
// the repository root.
const DefaultGeneratedRoot = "tests/generated"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// EndpointSpec is the canonical representation of one endpoint for planning.
type EndpointSpec struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Handler   string `json:"handler"`
	FilePath  string `json:"file_path"`
	Framework string `json:"framework"`
	Source    string `json:"source"`
}

// NormalizeRoutes converts stored route rows into endpoint specs. Methods are
// upper-cased; identity is the endpoint identity hash.
func NormalizeRoutes(rows []storage.RouteRecord, framework string) []EndpointSpec {
	specs := make([]EndpointSpec, 0, len(rows))
	for _, r := range rows {
		method := strings.ToUpper(r.Method)
		source := r.Source
		if source == "" {
			source = "unknown"
		}
		specs = append(specs, EndpointSpec{
			ID:        storage.EndpointID(method, r.HTTPPath),
			Method:    method,
			Path:      r.HTTPPath,
			Handler:   r.HandlerName,
			FilePath:  r.RelPath,
			Framework: framework,
			Source:    source,
		})
	}
	return specs
}

// EndpointTest is one planned test case.
type EndpointTest struct {
	EndpointID string `json:"endpoint_id"`
	TestName   string `json:"test_name"`
	Method     string `json:"method"`
	Path       string `json:"path"`
}

// FilePlan is one planned test file covering every endpoint of one source
// file.
type FilePlan struct {
	RelPath   string         `json:"rel_path"`
	ModuleKey string         `json:"module_key"`
	Endpoints []EndpointTest `json:"endpoints"`
}

// Plan is the full test scaffolding plan. Deterministic by construction:
// files sorted by module key, endpoints sorted within each file, collisions
// resolved by stable suffixes.
type Plan struct {
	GeneratedRoot string     `json:"generated_root"`
	Files         []FilePlan `json:"files"`
}

// Build groups specs by declaring file and assigns test-file paths and test
// names. generatedRoot defaults to DefaultGeneratedRoot when empty.
func Build(specs []EndpointSpec, generatedRoot string) *Plan {
	if generatedRoot == "" {
		generatedRoot = DefaultGeneratedRoot
	}
	root := strings.TrimRight(generatedRoot, "/")

	byModule := make(map[string][]EndpointSpec)
	for _, s := range specs {
		key := s.FilePath
		if key == "" {
			key = "unknown"
		}
		byModule[key] = append(byModule[key], s)
	}

	moduleKeys := make([]string, 0, len(byModule))
	for k := range byModule {
		moduleKeys = append(moduleKeys, k)
	}
	sort.Strings(moduleKeys)

	usedFilenames := make(map[string]string)
	plan := &Plan{GeneratedRoot: generatedRoot, Files: make([]FilePlan, 0, len(moduleKeys))}

	for _, moduleKey := range moduleKeys {
		endpoints := byModule[moduleKey]
		sort.SliceStable(endpoints, func(i, j int) bool {
			a, b := endpoints[i], endpoints[j]
			if a.Path != b.Path {
				return a.Path < b.Path
			}
			if a.Method != b.Method {
				return a.Method < b.Method
			}
			if a.Handler != b.Handler {
				return a.Handler < b.Handler
			}
			return a.ID < b.ID
		})

		stem := fileStem(moduleKey)
		filename := "test_" + stem + ".py"
		if owner, taken := usedFilenames[filename]; taken && owner != moduleKey {
			filename = fmt.Sprintf("test_%s__%s.py", stem, sha1Short(moduleKey))
		}
		usedFilenames[filename] = moduleKey

		counts := make(map[string]int)
		planned := make([]EndpointTest, 0, len(endpoints))
		for _, e := range endpoints {
			base := testName(e.Method, e.Path)
			counts[base]++
			name := base
			if counts[base] > 1 {
				name = fmt.Sprintf("%s_%d", base, counts[base])
			}
			planned = append(planned, EndpointTest{
				EndpointID: e.ID,
				TestName:   name,
				Method:     e.Method,
				Path:       e.Path,
			})
		}

		plan.Files = append(plan.Files, FilePlan{
			RelPath:   root + "/" + filename,
			ModuleKey: moduleKey,
			Endpoints: planned,
		})
	}

	return plan
}

func sha1Short(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:6]
}

// fileStem derives a safe test-file stem from a source path, e.g.
// routers/users.py -> users.
func fileStem(filePath string) string {
	base := filePath
	if base == "" {
		base = "api"
	}
	base = strings.ReplaceAll(base, "\\", "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".py")
	base = strings.ToLower(strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(base), "_"), "_"))
	if base == "" {
		return "api"
	}
	return base
}

// testName builds a test function name from the endpoint, e.g.
// GET /users/{id} -> test_get_users_by_id.
func testName(method, path string) string {
	var parts []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			parts = append(parts, "by_"+seg[1:len(seg)-1])
			continue
		}
		parts = append(parts, seg)
	}

	body := "root"
	if len(parts) > 0 {
		body = strings.Join(parts, "_")
	}
	body = strings.ToLower(strings.Trim(unsafeChars.ReplaceAllString(body, "_"), "_"))
	if body == "" {
		body = "root"
	}
	return fmt.Sprintf("test_%s_%s", strings.ToLower(method), body)
}
