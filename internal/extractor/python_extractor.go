package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// httpMethodAttrs maps decorator attribute names to HTTP methods, e.g.
// @router.get("/x") or @app.post("/x").
var httpMethodAttrs = map[string]string{
	"get":     "GET",
	"post":    "POST",
	"put":     "PUT",
	"patch":   "PATCH",
	"delete":  "DELETE",
	"options": "OPTIONS",
	"head":    "HEAD",
}

// PythonExtractor implements LanguageExtractor for Python web frameworks.
// It recognizes FastAPI-style method decorators, Flask-style @app.route
// decorators, and programmatic add_api_route calls. Dynamic paths
// (f-strings, concatenation) are intentionally not evaluated.
type PythonExtractor struct{}

func (p *PythonExtractor) GetLanguage() *sitter.Language {
	return python.GetLanguage()
}

func (p *PythonExtractor) GetQuery() string {
	return `
		(decorated_definition) @decorated
		(call) @call
	`
}

func (p *PythonExtractor) ExtractRoutes(captureName string, node *sitter.Node, source []byte) []RouteDecl {
	switch captureName {
	case "decorated":
		return p.extractDecorated(node, source)
	case "call":
		return p.extractAddAPIRoute(node, source)
	}
	return nil
}

type methodPath struct {
	method string
	path   string
}

func (p *PythonExtractor) extractDecorated(node *sitter.Node, source []byte) []RouteDecl {
	def := node.ChildByFieldName("definition")
	if def == nil || def.Type() != "function_definition" {
		return nil
	}
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	handler := nameNode.Content(source)
	startLine := int(def.StartPoint().Row) + 1
	endLine := int(def.EndPoint().Row) + 1

	var routes []RouteDecl
	for i := 0; i < int(node.ChildCount()); i++ {
		dec := node.Child(i)
		if dec.Type() != "decorator" {
			continue
		}
		declLine := int(dec.StartPoint().Row) + 1
		for _, mp := range p.parseRouteDecorator(dec.NamedChild(0), source) {
			routes = append(routes, RouteDecl{
				Method:      mp.method,
				Path:        mp.path,
				HandlerName: handler,
				StartLine:   startLine,
				EndLine:     endLine,
				DeclLine:    declLine,
			})
		}
	}
	return routes
}

// parseRouteDecorator recognizes @<anything>.<method>(<path>, ...) and
// Flask's @<anything>.route(<path>, methods=[...]).
func (p *PythonExtractor) parseRouteDecorator(expr *sitter.Node, source []byte) []methodPath {
	if expr == nil || expr.Type() != "call" {
		return nil
	}
	fn := expr.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return nil
	}
	attrNode := fn.ChildByFieldName("attribute")
	if attrNode == nil {
		return nil
	}
	attr := attrNode.Content(source)
	args := expr.ChildByFieldName("arguments")

	if method, ok := httpMethodAttrs[attr]; ok {
		path, ok := p.pathArgument(args, source)
		if !ok {
			return nil
		}
		return []methodPath{{method: method, path: path}}
	}

	if attr == "route" {
		path, ok := p.pathArgument(args, source)
		if !ok {
			return nil
		}
		methods, present := p.methodsKeyword(args, source)
		if !present {
			// Flask defaults to GET when methods= is omitted.
			methods = []string{"GET"}
		}
		var out []methodPath
		for _, m := range methods {
			out = append(out, methodPath{method: m, path: path})
		}
		return out
	}

	return nil
}

// extractAddAPIRoute recognizes <anything>.add_api_route(path, handler,
// methods=[...]). Without an explicit methods= the call is skipped rather
// than guessing defaults.
func (p *PythonExtractor) extractAddAPIRoute(node *sitter.Node, source []byte) []RouteDecl {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return nil
	}
	attrNode := fn.ChildByFieldName("attribute")
	if attrNode == nil || attrNode.Content(source) != "add_api_route" {
		return nil
	}

	args := node.ChildByFieldName("arguments")
	positional := positionalArgs(args)
	if len(positional) < 2 {
		return nil
	}

	path, ok := stringConstant(positional[0], source)
	if !ok {
		return nil
	}
	handler, ok := handlerName(positional[1], source)
	if !ok {
		return nil
	}
	methods, present := p.methodsKeyword(args, source)
	if !present || len(methods) == 0 {
		return nil
	}

	// The function span is unknown from the call site; best-effort lines.
	line := int(node.StartPoint().Row) + 1

	var routes []RouteDecl
	for _, m := range methods {
		routes = append(routes, RouteDecl{
			Method:      m,
			Path:        path,
			HandlerName: handler,
			StartLine:   line,
			EndLine:     line,
			DeclLine:    line,
		})
	}
	return routes
}

// pathArgument extracts the path from the first positional argument or a
// path= keyword. Only constant strings qualify.
func (p *PythonExtractor) pathArgument(args *sitter.Node, source []byte) (string, bool) {
	if args == nil {
		return "", false
	}
	if positional := positionalArgs(args); len(positional) > 0 {
		if s, ok := stringConstant(positional[0], source); ok {
			return s, true
		}
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() != "keyword_argument" {
			continue
		}
		name := child.ChildByFieldName("name")
		if name == nil || name.Content(source) != "path" {
			continue
		}
		return stringConstant(child.ChildByFieldName("value"), source)
	}
	return "", false
}

// methodsKeyword returns the methods= keyword as upper-cased strings. The
// second result reports whether the keyword was present at all; a present
// but non-constant value yields (nil, true) and the caller skips the route.
func (p *PythonExtractor) methodsKeyword(args *sitter.Node, source []byte) ([]string, bool) {
	if args == nil {
		return nil, false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() != "keyword_argument" {
			continue
		}
		name := child.ChildByFieldName("name")
		if name == nil || name.Content(source) != "methods" {
			continue
		}
		return stringConstantList(child.ChildByFieldName("value"), source), true
	}
	return nil, false
}

func positionalArgs(args *sitter.Node) []*sitter.Node {
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == "keyword_argument" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// handlerName stringifies the handler argument of add_api_route: a bare
// identifier or a dotted attribute like handlers.list_users.
func handlerName(n *sitter.Node, source []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "identifier", "attribute":
		return n.Content(source), true
	}
	return "", false
}

// stringConstant unquotes a constant string literal. f-strings and other
// non-constant expressions are rejected.
func stringConstant(n *sitter.Node, source []byte) (string, bool) {
	if n == nil || n.Type() != "string" {
		return "", false
	}
	raw := n.Content(source)

	i := 0
	for i < len(raw) && raw[i] != '"' && raw[i] != '\'' {
		switch raw[i] | 0x20 {
		case 'f':
			return "", false
		case 'r', 'b', 'u':
			i++
		default:
			return "", false
		}
	}
	body := raw[i:]

	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			return strings.TrimSpace(body[len(q) : len(body)-len(q)]), true
		}
	}
	return "", false
}

// stringConstantList handles methods=["GET", "POST"], a tuple/set, or a
// single string. Returns nil if any element is non-constant.
func stringConstantList(n *sitter.Node, source []byte) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "list", "tuple", "set":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			s, ok := stringConstant(n.NamedChild(i), source)
			if !ok {
				return nil
			}
			out = append(out, strings.ToUpper(strings.TrimSpace(s)))
		}
		return out
	}
	if s, ok := stringConstant(n, source); ok {
		return []string{strings.ToUpper(strings.TrimSpace(s))}
	}
	return nil
}
