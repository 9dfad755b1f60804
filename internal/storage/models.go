package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// FileRecord is the registry's view of one tracked candidate file.
// At most one record exists per repository-relative path.
type FileRecord struct {
	RelPath       string `json:"rel_path"`
	SHA256        string `json:"sha256"`
	MtimeNs       int64  `json:"mtime_ns"`
	SizeBytes     int64  `json:"size_bytes"`
	LastScannedAt int64  `json:"last_scanned_at"`
}

// RouteRecord is one stored route declaration. Its identity covers the
// declaration site, so the same endpoint declared on a new line is a new
// record.
type RouteRecord struct {
	ID          string `json:"id"`
	RelPath     string `json:"rel_path"`
	Method      string `json:"method"`
	HTTPPath    string `json:"http_path"`
	HandlerName string `json:"handler_name"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	DeclLine    int    `json:"decl_line"`
	Source      string `json:"source"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Scan is an immutable point-in-time marker. GitCommit is best-effort and
// may be empty.
type Scan struct {
	ScanID    int64  `json:"scan_id"`
	CreatedAt int64  `json:"created_at"`
	GitCommit string `json:"git_commit,omitempty"`
}

// EndpointSnapshot is one endpoint captured under a scan. Its identity is
// (method, http path) only, coarser than route identity.
type EndpointSnapshot struct {
	EndpointID  string `json:"endpoint_id"`
	Method      string `json:"method"`
	HTTPPath    string `json:"http_path"`
	RelPath     string `json:"rel_path"`
	HandlerName string `json:"handler_name"`
	DeclLine    int    `json:"decl_line"`
	Source      string `json:"source"`
}

// EndpointID returns the endpoint identity hash for (method, http path).
func EndpointID(method, httpPath string) string {
	base := strings.ToUpper(method) + "|" + httpPath
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// RouteID returns the route identity hash. It covers the declaration site
// (file and line), not just the endpoint.
func RouteID(relPath, method, httpPath, handlerName string, declLine int) string {
	base := fmt.Sprintf("%s|%s|%s|%s|%d", relPath, strings.ToUpper(method), httpPath, handlerName, declLine)
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}
