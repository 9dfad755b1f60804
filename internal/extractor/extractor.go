package extractor

import (
	"context"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxSourceBytes bounds how much of a file is parsed. Generated or vendored
// monsters beyond this are cut off rather than parsed in full.
const maxSourceBytes = 500_000

// Extractor orchestrates route extraction using a language-specific
// extractor. Parsing is structural only; no code is imported or executed.
type Extractor struct {
	langExtractor LanguageExtractor
	langName      string
}

// NewExtractor creates an extractor for a given language.
func NewExtractor(lang string) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "python":
		langExt = &PythonExtractor{}
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return &Extractor{langExtractor: langExt, langName: lang}, nil
}

// ExtractFromFile parses a single source file and extracts its route
// declarations.
func (e *Extractor) ExtractFromFile(path string) ([]RouteDecl, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if len(source) > maxSourceBytes {
		source = source[:maxSourceBytes]
	}
	return e.ExtractFromSource(source)
}

// ExtractFromSource parses source bytes and extracts route declarations in
// stable order (declaration line, then handler name).
func (e *Extractor) ExtractFromSource(source []byte) ([]RouteDecl, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}

	query, err := sitter.NewQuery([]byte(e.langExtractor.GetQuery()), e.langExtractor.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}

	qc := sitter.NewQueryCursor()
	qc.Exec(query, tree.RootNode())

	var routes []RouteDecl
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			captureName := query.CaptureNameForId(c.Index)
			routes = append(routes, e.langExtractor.ExtractRoutes(captureName, c.Node, source)...)
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].DeclLine != routes[j].DeclLine {
			return routes[i].DeclLine < routes[j].DeclLine
		}
		return routes[i].HandlerName < routes[j].HandlerName
	})
	return routes, nil
}
