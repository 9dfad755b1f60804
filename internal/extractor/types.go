package extractor

import sitter "github.com/smacker/go-tree-sitter"

// RouteDecl is one extracted route declaration: what the endpoint is and
// where it is declared. Line numbers are 1-based.
type RouteDecl struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	HandlerName string `json:"handler_name"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	DeclLine    int    `json:"decl_line"`
}

// LanguageExtractor defines the interface each framework/language parser
// must implement.
type LanguageExtractor interface {
	GetLanguage() *sitter.Language
	GetQuery() string
	ExtractRoutes(captureName string, node *sitter.Node, source []byte) []RouteDecl
}
