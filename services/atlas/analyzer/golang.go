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
	"github.com/smacker/go-tree-sitter/golang"
)

// goBuiltins are predeclared identifiers that never produce dependency edges.
var goBuiltins = map[string]bool{
	"make": true, "new": true, "len": true, "cap": true, "append": true,
	"copy": true, "delete": true, "panic": true, "recover": true,
	"print": true, "println": true, "close": true, "complex": true,
	"real": true, "imag": true, "min": true, "max": true, "clear": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "float32": true, "float64": true, "complex64": true,
	"complex128": true, "string": true, "bool": true, "byte": true,
	"rune": true, "error": true, "any": true,
}

// GoAnalyzerOption configures a GoAnalyzer instance.
type GoAnalyzerOption func(*GoAnalyzer)

// WithGoMaxFileSize sets the maximum file size the analyzer will accept.
func WithGoMaxFileSize(bytes int64) GoAnalyzerOption {
	return func(a *GoAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// GoAnalyzer extracts components and dependency edges from Go source.
//
// Struct and interface type declarations, functions, and methods become
// components. Methods are named "Receiver.Method". Edges cover struct field
// types, interface and struct embedding, function calls, and selector calls
// resolved through the file's import table. Test functions in _test.go files
// are excluded.
type GoAnalyzer struct {
	maxFileSize int64
}

// NewGoAnalyzer creates a GoAnalyzer with the given options.
func NewGoAnalyzer(opts ...GoAnalyzerOption) *GoAnalyzer {
	a := &GoAnalyzer{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "go".
func (a *GoAnalyzer) Language() string { return "go" }

// Extensions returns the file extensions handled by this analyzer.
func (a *GoAnalyzer) Extensions() []string { return []string{".go"} }

// goState holds per-file extraction state.
type goState struct {
	filePath string
	relPath  string
	modPath  string
	isTest   bool
	content  []byte
	lines    []string
	imports  map[string]string // local package name -> dotted import path
	topLevel map[string]bool   // file-level type and function names
	comps    []*Component
	edges    []DependencyEdge
}

// Analyze parses Go source and extracts components and dependency edges.
func (a *GoAnalyzer) Analyze(ctx context.Context, content []byte, filePath, repoRoot string) ([]*Component, []DependencyEdge, error) {
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
	parser.SetLanguage(golang.GetLanguage())

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
	st := &goState{
		filePath: filePath,
		relPath:  rel,
		modPath:  modulePath(rel, ".go"),
		isTest:   strings.HasSuffix(rel, "_test.go"),
		content:  content,
		lines:    strings.Split(string(content), "\n"),
		imports:  make(map[string]string),
		topLevel: make(map[string]bool),
	}

	a.collectImports(root, st)
	a.collectTopLevelNames(root, st)
	a.extractDeclarations(root, st)

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("analyze canceled after extraction: %w", err)
	}
	return st.comps, st.edges, nil
}

// text returns the source text of a node.
func (st *goState) text(node *sitter.Node) string {
	return string(st.content[node.StartByte():node.EndByte()])
}

// collectImports records the file's import table, keyed by the local package
// name (the alias or the final path element). Blank and dot imports are
// skipped.
func (a *GoAnalyzer) collectImports(root *sitter.Node, st *goState) {
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == "import_spec" {
			var name, path string
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				switch child.Type() {
				case "package_identifier":
					name = st.text(child)
				case "blank_identifier", "dot":
					return
				case "interpreted_string_literal", "raw_string_literal":
					path = strings.Trim(st.text(child), "`\"")
				}
			}
			if path == "" {
				return
			}
			if name == "" {
				name = path
				if idx := strings.LastIndex(path, "/"); idx >= 0 {
					name = path[idx+1:]
				}
			}
			st.imports[name] = strings.ReplaceAll(path, "/", ".")
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		if root.Child(i).Type() == "import_declaration" {
			walk(root.Child(i))
		}
	}
}

// collectTopLevelNames records file-level type and function names so that
// same-file references resolve regardless of declaration order.
func (a *GoAnalyzer) collectTopLevelNames(root *sitter.Node, st *goState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				st.topLevel[st.text(name)] = true
			}
		case "type_declaration":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "type_spec" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					st.topLevel[st.text(name)] = true
				}
			}
		}
	}
}

// extractDeclarations walks the file's top-level declarations building
// components and edges.
func (a *GoAnalyzer) extractDeclarations(root *sitter.Node, st *goState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "type_declaration":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() == "type_spec" {
					a.processTypeSpec(child, spec, st)
				}
			}
		case "function_declaration":
			a.processFunction(child, st)
		case "method_declaration":
			a.processMethod(child, st)
		}
	}
}

// processTypeSpec extracts one struct or interface component with its
// embedding and field-type edges. Alias and other type forms are skipped.
func (a *GoAnalyzer) processTypeSpec(decl, spec *sitter.Node, st *goState) {
	nameNode := spec.ChildByFieldName("name")
	typeNode := spec.ChildByFieldName("type")
	if nameNode == nil || typeNode == nil {
		return
	}
	name := st.text(nameNode)
	id := st.modPath + "." + name

	var kind ComponentKind
	var keyword string
	switch typeNode.Type() {
	case "struct_type":
		kind, keyword = KindStruct, "struct"
	case "interface_type":
		kind, keyword = KindInterface, "interface"
	default:
		return
	}

	startLine := int(decl.StartPoint().Row) + 1
	endLine := int(decl.EndPoint().Row) + 1
	doc := a.docComment(decl, st)

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
		DisplayName:  keyword + " " + name,
	}
	st.comps = append(st.comps, comp)

	a.collectTypeEdges(typeNode, st, id)
}

// collectTypeEdges records edges for type names referenced inside a struct
// or interface body: field types and embedded types.
func (a *GoAnalyzer) collectTypeEdges(node *sitter.Node, st *goState, callerID string) {
	line := int(node.StartPoint().Row) + 1
	switch node.Type() {
	case "type_identifier":
		name := st.text(node)
		if goBuiltins[name] {
			return
		}
		if st.topLevel[name] {
			st.addEdge(callerID, st.modPath+"."+name, line, true)
		} else {
			st.addEdge(callerID, name, line, false)
		}
		return
	case "qualified_type":
		pkg := node.ChildByFieldName("package")
		typ := node.ChildByFieldName("name")
		if pkg == nil || typ == nil {
			return
		}
		ref := st.text(pkg) + "." + st.text(typ)
		if full, ok := st.imports[st.text(pkg)]; ok {
			ref = full + "." + st.text(typ)
		}
		st.addEdge(callerID, ref, line, false)
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.collectTypeEdges(node.Child(i), st, callerID)
	}
}

// processFunction extracts one file-level function component and its call
// edges. Test entry points in _test.go files are skipped.
func (a *GoAnalyzer) processFunction(node *sitter.Node, st *goState) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := st.text(nameNode)
	if st.isTest && (strings.HasPrefix(name, "Test") ||
		strings.HasPrefix(name, "Benchmark") || strings.HasPrefix(name, "Fuzz")) {
		return
	}

	id := st.modPath + "." + name
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	doc := a.docComment(node, st)
	returnType := a.resultType(node, st)

	display := "function " + name
	if returnType != "" {
		display += " -> " + returnType
	}

	comp := &Component{
		ID:           id,
		Name:         name,
		Kind:         KindFunction,
		FilePath:     st.filePath,
		RelativePath: st.relPath,
		SourceCode:   sourceSlice(st.lines, startLine, endLine),
		StartLine:    startLine,
		EndLine:      endLine,
		HasDoc:       doc != "",
		Doc:          doc,
		DisplayName:  display,
	}
	if returnType != "" {
		comp.Attributes = &Attributes{ReturnType: returnType}
	}
	st.comps = append(st.comps, comp)

	if body := node.ChildByFieldName("body"); body != nil {
		a.walkCalls(body, st, id, "")
	}
}

// processMethod extracts one method component ("Receiver.Method") and its
// call edges, plus a containment edge to the receiver type.
func (a *GoAnalyzer) processMethod(node *sitter.Node, st *goState) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	methodName := st.text(nameNode)
	receiver := a.receiverTypeName(node, st)
	if receiver == "" {
		return
	}

	name := receiver + "." + methodName
	id := st.modPath + "." + name
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	doc := a.docComment(node, st)
	returnType := a.resultType(node, st)

	display := fmt.Sprintf("method (%s) %s", receiver, methodName)
	if returnType != "" {
		display += " -> " + returnType
	}

	comp := &Component{
		ID:           id,
		Name:         name,
		Kind:         KindMethod,
		FilePath:     st.filePath,
		RelativePath: st.relPath,
		SourceCode:   sourceSlice(st.lines, startLine, endLine),
		StartLine:    startLine,
		EndLine:      endLine,
		HasDoc:       doc != "",
		Doc:          doc,
		DisplayName:  display,
	}
	if returnType != "" {
		comp.Attributes = &Attributes{ReturnType: returnType}
	}
	st.comps = append(st.comps, comp)

	// Methods depend on their receiver type when it is declared in this file.
	if st.topLevel[receiver] {
		st.addEdge(id, st.modPath+"."+receiver, startLine, true)
	}

	if body := node.ChildByFieldName("body"); body != nil {
		a.walkCalls(body, st, id, receiver)
	}
}

// receiverTypeName returns the method receiver's base type name.
func (a *GoAnalyzer) receiverTypeName(node *sitter.Node, st *goState) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var name string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if name != "" {
			return
		}
		if n.Type() == "type_identifier" {
			name = st.text(n)
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(recv)
	return name
}

// resultType returns the function's result clause text, or "".
func (a *GoAnalyzer) resultType(node *sitter.Node, st *goState) string {
	if result := node.ChildByFieldName("result"); result != nil {
		return st.text(result)
	}
	return ""
}

// walkCalls recursively finds call expressions below node, attributing them
// to callerID. receiver is the method receiver type name, enabling
// same-receiver method call resolution.
func (a *GoAnalyzer) walkCalls(node *sitter.Node, st *goState, callerID, receiver string) {
	if node.Type() == "call_expression" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			a.processCall(fn, st, callerID, receiver, int(node.StartPoint().Row)+1)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.walkCalls(node.Child(i), st, callerID, receiver)
	}
}

// processCall resolves one call target and records the edge.
//
// Resolution order: same-file top-level name (resolved), import table
// (unresolved, cross-package), receiver method call to the enclosing type
// (resolved), bare selector (unresolved).
func (a *GoAnalyzer) processCall(fn *sitter.Node, st *goState, callerID, receiver string, line int) {
	switch fn.Type() {
	case "identifier":
		name := st.text(fn)
		if goBuiltins[name] {
			return
		}
		if st.topLevel[name] {
			st.addEdge(callerID, st.modPath+"."+name, line, true)
		} else {
			st.addEdge(callerID, name, line, false)
		}
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if operand == nil || field == nil {
			return
		}
		if operand.Type() != "identifier" {
			return
		}
		base := st.text(operand)
		sel := st.text(field)
		if full, ok := st.imports[base]; ok {
			st.addEdge(callerID, full+"."+sel, line, false)
			return
		}
		if receiver != "" && st.topLevel[receiver] {
			// Method call on the receiver variable.
			st.addEdge(callerID, st.modPath+"."+receiver+"."+sel, line, true)
			return
		}
		st.addEdge(callerID, base+"."+sel, line, false)
	}
}

// docComment returns the cleaned doc comment preceding a declaration.
func (a *GoAnalyzer) docComment(node *sitter.Node, st *goState) string {
	var parts []string
	wantRow := int(node.StartPoint().Row) - 1
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		// Only an adjacent run of comment lines belongs to the doc block.
		if prev.Type() != "comment" || int(prev.EndPoint().Row) != wantRow {
			break
		}
		text := st.text(prev)
		text = strings.TrimPrefix(text, "//")
		text = strings.TrimPrefix(strings.TrimSuffix(text, "*/"), "/*")
		parts = append([]string{strings.TrimSpace(text)}, parts...)
		wantRow = int(prev.StartPoint().Row) - 1
	}
	return strings.Join(parts, " ")
}

// addEdge appends a dependency edge.
func (st *goState) addEdge(caller, callee string, line int, resolved bool) {
	st.edges = append(st.edges, DependencyEdge{
		CallerID: caller,
		CalleeID: callee,
		Line:     line,
		Resolved: resolved,
	})
}

// Compile-time interface compliance check.
var _ Analyzer = (*GoAnalyzer)(nil)
