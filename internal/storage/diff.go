package storage

import (
	"context"
	"sort"
)

// MovedEndpoint is a common endpoint whose owning file changed between two
// scans. The handler fields are reported alongside but a handler change is
// not classified separately when the file moved.
type MovedEndpoint struct {
	EndpointID  string `json:"endpoint_id"`
	Method      string `json:"method"`
	HTTPPath    string `json:"http_path"`
	FromRelPath string `json:"from_rel_path"`
	ToRelPath   string `json:"to_rel_path"`
	FromHandler string `json:"from_handler"`
	ToHandler   string `json:"to_handler"`
}

// HandlerChange is a common endpoint whose file is unchanged but whose
// handler name differs between two scans.
type HandlerChange struct {
	EndpointID  string `json:"endpoint_id"`
	Method      string `json:"method"`
	HTTPPath    string `json:"http_path"`
	RelPath     string `json:"rel_path"`
	FromHandler string `json:"from_handler"`
	ToHandler   string `json:"to_handler"`
}

// ScanDiff is the structural difference between two scan snapshots. All
// lists are sorted by endpoint identity.
type ScanDiff struct {
	FromScanID     int64              `json:"from"`
	ToScanID       int64              `json:"to"`
	Added          []EndpointSnapshot `json:"added"`
	Removed        []EndpointSnapshot `json:"removed"`
	Moved          []MovedEndpoint    `json:"moved"`
	HandlerChanged []HandlerChange    `json:"handler_changed"`
}

// DiffEngine computes the structural difference between two stored scan
// snapshots.
type DiffEngine struct {
	scans *ScanManager
}

func NewDiffEngine(scans *ScanManager) *DiffEngine {
	return &DiffEngine{scans: scans}
}

// Diff classifies endpoint changes between two scans. An absent scan id
// yields an empty snapshot, so diffing against a bad id reports everything
// added or removed rather than failing; use ScanManager.ScanExists when an
// existence guarantee is needed.
func (e *DiffEngine) Diff(ctx context.Context, fromScanID, toScanID int64) (*ScanDiff, error) {
	from, err := e.scans.ScanEndpoints(ctx, fromScanID)
	if err != nil {
		return nil, err
	}
	to, err := e.scans.ScanEndpoints(ctx, toScanID)
	if err != nil {
		return nil, err
	}

	d := &ScanDiff{
		FromScanID:     fromScanID,
		ToScanID:       toScanID,
		Added:          []EndpointSnapshot{},
		Removed:        []EndpointSnapshot{},
		Moved:          []MovedEndpoint{},
		HandlerChanged: []HandlerChange{},
	}

	for _, id := range sortedKeys(to) {
		if _, ok := from[id]; !ok {
			d.Added = append(d.Added, to[id])
		}
	}
	for _, id := range sortedKeys(from) {
		if _, ok := to[id]; !ok {
			d.Removed = append(d.Removed, from[id])
		}
	}

	// A common identity is classified exactly once: moved takes precedence
	// over a handler change, never both.
	for _, id := range sortedKeys(from) {
		a := from[id]
		b, ok := to[id]
		if !ok {
			continue
		}
		switch {
		case a.RelPath != b.RelPath:
			d.Moved = append(d.Moved, MovedEndpoint{
				EndpointID:  id,
				Method:      b.Method,
				HTTPPath:    b.HTTPPath,
				FromRelPath: a.RelPath,
				ToRelPath:   b.RelPath,
				FromHandler: a.HandlerName,
				ToHandler:   b.HandlerName,
			})
		case a.HandlerName != b.HandlerName:
			d.HandlerChanged = append(d.HandlerChanged, HandlerChange{
				EndpointID:  id,
				Method:      b.Method,
				HTTPPath:    b.HTTPPath,
				RelPath:     b.RelPath,
				FromHandler: a.HandlerName,
				ToHandler:   b.HandlerName,
			})
		}
	}

	return d, nil
}

func sortedKeys(m map[string]EndpointSnapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
