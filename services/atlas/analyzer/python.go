// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// pythonBuiltins are call targets that never produce dependency edges.
var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "str": true, "int": true, "float": true,
	"bool": true, "list": true, "dict": true, "tuple": true, "set": true,
	"range": true, "enumerate": true, "zip": true, "isinstance": true,
	"hasattr": true, "getattr": true, "setattr": true, "open": true,
	"super": true, "__import__": true, "type": true, "object": true,
	"Exception": true, "ValueError": true, "TypeError": true, "KeyError": true,
	"IndexError": true, "AttributeError": true, "ImportError": true,
	"max": true, "min": true, "sum": true, "abs": true, "round": true,
	"sorted": true, "reversed": true, "filter": true, "map": true,
	"any": true, "all": true, "next": true, "iter": true, "callable": true,
	"repr": true, "format": true, "exec": true, "eval": true,
}

// pythonTypingBuiltins are annotation names that never produce type edges.
var pythonTypingBuiltins = map[string]bool{
	"int": true, "str": true, "float": true, "bool": true, "None": true,
	"Any": true, "Optional": true, "List": true, "Dict": true, "Set": true,
	"Tuple": true, "Union": true, "Callable": true,
}

// PythonAnalyzerOption configures a PythonAnalyzer instance.
type PythonAnalyzerOption func(*PythonAnalyzer)

// WithPythonMaxFileSize sets the maximum file size the analyzer will accept.
func WithPythonMaxFileSize(bytes int64) PythonAnalyzerOption {
	return func(a *PythonAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// PythonAnalyzer extracts components and dependency edges from Python source.
//
// The analyzer uses tree-sitter and extracts top-level classes and functions
// as components. Calls made inside a class body (including its methods) are
// attributed to the class; calls inside a top-level function are attributed
// to that function. Edge targets are resolved in order: same-file top-level
// name, import table, self/cls receiver, bare name.
//
// Thread Safety:
//
//	PythonAnalyzer instances are safe for concurrent use. Each Analyze call
//	creates its own tree-sitter parser and extraction state.
type PythonAnalyzer struct {
	maxFileSize int64
}

// NewPythonAnalyzer creates a PythonAnalyzer with the given options.
func NewPythonAnalyzer(opts ...PythonAnalyzerOption) *PythonAnalyzer {
	a := &PythonAnalyzer{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "python".
func (a *PythonAnalyzer) Language() string { return "python" }

// Extensions returns the file extensions handled by this analyzer.
func (a *PythonAnalyzer) Extensions() []string { return []string{".py", ".pyx"} }

// pyState holds per-file extraction state.
type pyState struct {
	filePath   string
	relPath    string
	modPath    string
	content    []byte
	lines      []string
	imports    map[string]string // local name -> module path ("import x as y")
	fromImport map[string]string // local name -> module.name ("from m import x")
	topLevel   map[string]bool   // top-level class and function names
	components []*Component
	edges      []DependencyEdge
}

// Analyze parses Python source and extracts components and dependency edges.
//
// Returns ErrFileTooLarge, ErrInvalidContent, or ErrParseFailed wrapped with
// detail; on success the error is nil and the slices may be empty.
func (a *PythonAnalyzer) Analyze(ctx context.Context, content []byte, filePath, repoRoot string) ([]*Component, []DependencyEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("analyze canceled before start: %w", err)
	}
	if int64(len(content)) > a.maxFileSize {
		return nil, nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), a.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("analyzing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidContent, filePath)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil, fmt.Errorf("%w: nil root node", ErrParseFailed)
	}

	rel := relativePath(filePath, repoRoot)
	st := &pyState{
		filePath:   filePath,
		relPath:    rel,
		modPath:    modulePath(rel, ".py", ".pyx"),
		content:    content,
		lines:      strings.Split(string(content), "\n"),
		imports:    make(map[string]string),
		fromImport: make(map[string]string),
		topLevel:   make(map[string]bool),
	}

	// Pass 1: imports and top-level names, so same-file references resolve
	// regardless of declaration order.
	a.collectImports(root, st)
	a.collectTopLevelNames(root, st)

	// Pass 2: components and edges.
	a.extractModule(root, st)

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("analyze canceled after extraction: %w", err)
	}
	return st.components, st.edges, nil
}

// collectImports records "import x [as y]" and "from m import n [as p]"
// statements, resolving relative imports against the file's module path.
func (a *PythonAnalyzer) collectImports(root *sitter.Node, st *pyState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "import_statement":
			a.processImport(child, st)
		case "import_from_statement":
			a.processImportFrom(child, st)
		}
	}
}

// processImport handles 'import foo' and 'import foo as bar'.
func (a *PythonAnalyzer) processImport(node *sitter.Node, st *pyState) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			path := st.text(child)
			local := path
			if idx := strings.Index(path, "."); idx >= 0 {
				local = path[:idx]
			}
			// 'import a.b' binds 'a'; keep the full path for prefix joins.
			st.imports[local] = path
			if local != path {
				st.imports[path] = path
			}
		case "aliased_import":
			var path, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					path = st.text(gc)
				case "identifier":
					alias = st.text(gc)
				}
			}
			if path != "" && alias != "" {
				st.imports[alias] = path
			}
		}
	}
}

// processImportFrom handles 'from x import y [as z]' including relative forms.
func (a *PythonAnalyzer) processImportFrom(node *sitter.Node, st *pyState) {
	var module string
	var level int
	sawImport := false

	record := func(name, alias string) {
		local := name
		if alias != "" {
			local = alias
		}
		full := name
		if module != "" {
			full = module + "." + name
		}
		st.fromImport[local] = full
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "import_prefix":
					level = len(st.text(gc))
				case "dotted_name":
					module = st.text(gc)
				}
			}
		case "dotted_name":
			if !sawImport {
				module = st.text(child)
			} else {
				record(st.text(child), "")
			}
		case "identifier":
			if sawImport {
				record(st.text(child), "")
			}
		case "aliased_import":
			var name, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					name = st.text(gc)
				case "identifier":
					if name == "" {
						name = st.text(gc)
					} else {
						alias = st.text(gc)
					}
				}
			}
			if name != "" {
				record(name, alias)
			}
		case "wildcard_import":
			// 'from m import *' cannot be tracked precisely; skip.
		}
	}

	if level > 0 {
		module = resolveRelativeModule(st.modPath, module, level)
		// Re-resolve recorded names against the absolute module path.
		for local, full := range st.fromImport {
			name := full
			if idx := strings.LastIndex(full, "."); idx >= 0 {
				name = full[idx+1:]
			}
			if module != "" {
				st.fromImport[local] = module + "." + name
			} else {
				st.fromImport[local] = name
			}
		}
	}
}

// resolveRelativeModule converts a relative import to an absolute dotted
// module path. level counts the leading dots.
func resolveRelativeModule(current, module string, level int) string {
	parts := strings.Split(current, ".")
	if level > len(parts) {
		return module
	}
	base := strings.Join(parts[:len(parts)-level], ".")
	switch {
	case base == "":
		return module
	case module == "":
		return base
	default:
		return base + "." + module
	}
}

// collectTopLevelNames records every top-level class and function name.
func (a *PythonAnalyzer) collectTopLevelNames(root *sitter.Node, st *pyState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		def := child
		if child.Type() == "decorated_definition" {
			if d := child.ChildByFieldName("definition"); d != nil {
				def = d
			}
		}
		switch def.Type() {
		case "class_definition", "function_definition":
			if name := def.ChildByFieldName("name"); name != nil {
				st.topLevel[st.text(name)] = true
			}
		}
	}
}

// extractModule walks the module's top-level statements building components
// and edges.
func (a *PythonAnalyzer) extractModule(root *sitter.Node, st *pyState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		var decorators []string
		def := child
		if child.Type() == "decorated_definition" {
			decorators = a.extractDecorators(child, st)
			if d := child.ChildByFieldName("definition"); d != nil {
				def = d
			}
		}
		switch def.Type() {
		case "class_definition":
			a.processClass(def, st, decorators)
		case "function_definition":
			a.processTopLevelFunction(def, st, decorators)
		}
	}
}

// extractDecorators returns decorator names from a decorated_definition.
func (a *PythonAnalyzer) extractDecorators(node *sitter.Node, st *pyState) []string {
	var decorators []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			gc := child.Child(j)
			switch gc.Type() {
			case "identifier", "attribute":
				decorators = append(decorators, st.text(gc))
			case "call":
				if fn := gc.ChildByFieldName("function"); fn != nil {
					decorators = append(decorators, st.text(fn)+"(...)")
				}
			}
		}
	}
	return decorators
}

// processClass extracts a class component, its base-class edges, and the
// call edges made anywhere inside its body.
func (a *PythonAnalyzer) processClass(node *sitter.Node, st *pyState, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := st.text(nameNode)
	id := st.modPath + "." + name
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	var bases []string
	if args := node.ChildByFieldName("superclasses"); args != nil {
		for i := 0; i < int(args.ChildCount()); i++ {
			arg := args.Child(i)
			if arg.Type() == "identifier" || arg.Type() == "attribute" {
				bases = append(bases, st.text(arg))
			}
		}
	}

	doc := ""
	if body := node.ChildByFieldName("body"); body != nil {
		doc = a.extractDocstring(body, st)
	}

	kind := KindClass
	for _, b := range bases {
		if b == "ABC" || b == "abc.ABC" {
			kind = KindAbstractClass
		}
	}

	comp := &Component{
		ID:           id,
		Name:         name,
		Kind:         kind,
		FilePath:     st.filePath,
		RelativePath: st.relPath,
		SourceCode:   sourceSlice(st.lines, startLine, endLine),
		StartLine:    startLine,
		EndLine:      endLine,
		HasDoc:       doc != "",
		Doc:          doc,
		DisplayName:  "class " + name,
	}
	if len(decorators) > 0 || len(bases) > 0 {
		comp.Attributes = &Attributes{Decorators: decorators, BaseClasses: bases}
	}
	st.components = append(st.components, comp)

	// Base-class dependency edges.
	for _, base := range bases {
		switch {
		case st.topLevel[base]:
			st.addEdge(id, st.modPath+"."+base, startLine, true)
		default:
			if resolved := st.resolveImport(base); resolved != "" {
				st.addEdge(id, resolved, startLine, false)
			} else {
				st.addEdge(id, base, startLine, false)
			}
		}
	}

	// Calls anywhere inside the class body are attributed to the class.
	if body := node.ChildByFieldName("body"); body != nil {
		a.walkCalls(body, st, id, name)
	}
}

// processTopLevelFunction extracts a top-level function component, its
// annotation-type edges, and call edges inside its body.
func (a *PythonAnalyzer) processTopLevelFunction(node *sitter.Node, st *pyState, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := st.text(nameNode)
	if strings.HasPrefix(name, "_test_") {
		return
	}

	id := st.modPath + "." + name
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	isAsync := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "async" {
			isAsync = true
			break
		}
	}

	params, typeRefs := a.extractParameters(node, st)
	returnType := ""
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		returnType = st.text(ret)
		a.collectTypeRefs(ret, st, typeRefs)
	}

	doc := ""
	if body := node.ChildByFieldName("body"); body != nil {
		doc = a.extractDocstring(body, st)
	}

	kind := KindFunction
	display := "function " + name
	if isAsync {
		kind = KindAsyncFunction
		display = "async function " + name
	}
	if returnType != "" {
		display += " -> " + returnType
	}

	comp := &Component{
		ID:           id,
		Name:         name,
		Kind:         kind,
		FilePath:     st.filePath,
		RelativePath: st.relPath,
		SourceCode:   sourceSlice(st.lines, startLine, endLine),
		StartLine:    startLine,
		EndLine:      endLine,
		HasDoc:       doc != "",
		Doc:          doc,
		DisplayName:  display,
	}
	if len(decorators) > 0 || len(params) > 0 || returnType != "" {
		comp.Attributes = &Attributes{
			Decorators: decorators,
			Parameters: params,
			ReturnType: returnType,
		}
	}
	st.components = append(st.components, comp)

	// Annotation-type dependency edges.
	for ref := range typeRefs {
		if resolved := st.resolveImport(ref); resolved != "" {
			st.addEdge(id, resolved, startLine, false)
		} else if st.topLevel[ref] {
			st.addEdge(id, st.modPath+"."+ref, startLine, true)
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		a.walkCalls(body, st, id, "")
	}
}

// extractParameters returns the parameter declarations (with annotations)
// and accumulates annotation type references.
func (a *PythonAnalyzer) extractParameters(node *sitter.Node, st *pyState) ([]string, map[string]bool) {
	typeRefs := make(map[string]bool)
	params := []string{}

	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode == nil {
		return params, typeRefs
	}

	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		p := paramsNode.Child(i)
		switch p.Type() {
		case "identifier":
			params = append(params, st.text(p))
		case "typed_parameter", "typed_default_parameter":
			var pname string
			for j := 0; j < int(p.ChildCount()); j++ {
				if p.Child(j).Type() == "identifier" {
					pname = st.text(p.Child(j))
					break
				}
			}
			if t := p.ChildByFieldName("type"); t != nil {
				a.collectTypeRefs(t, st, typeRefs)
				if pname != "" {
					params = append(params, pname+": "+st.text(t))
				}
			} else if pname != "" {
				params = append(params, pname)
			}
		case "default_parameter":
			if n := p.ChildByFieldName("name"); n != nil {
				params = append(params, st.text(n))
			}
		}
	}
	return params, typeRefs
}

// collectTypeRefs recursively collects non-builtin type names referenced by
// an annotation node, descending into subscripts, tuples, and unions.
func (a *PythonAnalyzer) collectTypeRefs(node *sitter.Node, st *pyState, refs map[string]bool) {
	switch node.Type() {
	case "identifier":
		name := st.text(node)
		if !pythonTypingBuiltins[name] {
			refs[name] = true
		}
	case "attribute":
		refs[st.text(node)] = true
	default:
		for i := 0; i < int(node.ChildCount()); i++ {
			a.collectTypeRefs(node.Child(i), st, refs)
		}
	}
}

// walkCalls recursively finds call expressions below node, attributing them
// to callerID. className is non-empty when the caller is a class, enabling
// self/cls receiver resolution.
func (a *PythonAnalyzer) walkCalls(node *sitter.Node, st *pyState, callerID, className string) {
	if node.Type() == "call" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			a.processCall(fn, st, callerID, className, int(node.StartPoint().Row)+1)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.walkCalls(node.Child(i), st, callerID, className)
	}
}

// processCall resolves one call target and records the edge.
//
// Resolution order: same-file top-level name (resolved), import table
// (unresolved, cross-file), self/cls receiver to the enclosing class
// (resolved), bare name (unresolved).
func (a *PythonAnalyzer) processCall(fn *sitter.Node, st *pyState, callerID, className string, line int) {
	callName := a.callName(fn, st)
	if callName == "" {
		return
	}

	if st.topLevel[callName] {
		st.addEdge(callerID, st.modPath+"."+callName, line, true)
		return
	}

	if resolved := st.resolveImport(callName); resolved != "" {
		st.addEdge(callerID, resolved, line, false)
		return
	}

	if idx := strings.Index(callName, "."); idx > 0 {
		receiver := callName[:idx]
		if (receiver == "self" || receiver == "cls") && className != "" {
			st.addEdge(callerID, st.modPath+"."+className, line, true)
			return
		}
	}

	st.addEdge(callerID, callName, line, false)
}

// callName extracts the dotted call target name, filtering builtins.
func (a *PythonAnalyzer) callName(fn *sitter.Node, st *pyState) string {
	switch fn.Type() {
	case "identifier":
		name := st.text(fn)
		if pythonBuiltins[name] {
			return ""
		}
		return name
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		switch obj.Type() {
		case "identifier":
			base := st.text(obj)
			if pythonBuiltins[base] {
				return ""
			}
			return base + "." + st.text(attr)
		case "attribute":
			base := a.callName(obj, st)
			if base == "" {
				return ""
			}
			return base + "." + st.text(attr)
		default:
			return st.text(attr)
		}
	}
	return ""
}

// extractDocstring returns the docstring of a block node, if present.
func (a *PythonAnalyzer) extractDocstring(body *sitter.Node, st *pyState) string {
	if body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	strNode := first.Child(0)
	if strNode.Type() != "string" {
		return ""
	}
	return strings.Trim(st.text(strNode), `"'`)
}

// text returns the source text of a node.
func (st *pyState) text(node *sitter.Node) string {
	return string(st.content[node.StartByte():node.EndByte()])
}

// resolveImport maps a locally used name to its imported module path, or ""
// when the name is not import-bound.
func (st *pyState) resolveImport(name string) string {
	if full, ok := st.fromImport[name]; ok {
		return full
	}
	parts := strings.Split(name, ".")
	if full, ok := st.imports[parts[0]]; ok {
		return strings.Join(append([]string{full}, parts[1:]...), ".")
	}
	return ""
}

// addEdge appends a dependency edge.
func (st *pyState) addEdge(caller, callee string, line int, resolved bool) {
	st.edges = append(st.edges, DependencyEdge{
		CallerID: caller,
		CalleeID: callee,
		Line:     line,
		Resolved: resolved,
	})
}

// Compile-time interface compliance check.
var _ Analyzer = (*PythonAnalyzer)(nil)
