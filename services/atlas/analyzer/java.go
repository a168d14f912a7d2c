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
	"github.com/smacker/go-tree-sitter/java"
)

// javaBuiltins are primitive and java.lang/collection types that never
// produce dependency edges.
var javaBuiltins = map[string]bool{
	"boolean": true, "byte": true, "char": true, "double": true,
	"float": true, "int": true, "long": true, "short": true,
	"Boolean": true, "Byte": true, "Character": true, "Double": true,
	"Float": true, "Integer": true, "Long": true, "Short": true,
	"String": true, "Object": true, "List": true, "Set": true,
	"Map": true, "Collection": true, "Optional": true,
	"void": true, "Void": true,
}

// JavaAnalyzerOption configures a JavaAnalyzer instance.
type JavaAnalyzerOption func(*JavaAnalyzer)

// WithJavaMaxFileSize sets the maximum file size the analyzer will accept.
func WithJavaMaxFileSize(bytes int64) JavaAnalyzerOption {
	return func(a *JavaAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// JavaAnalyzer extracts components and dependency edges from Java source.
//
// Classes, interfaces, enums, records, and annotation types become
// components, as do methods (id "module.Class.method"). Edges cover
// extends/implements, field types, method invocations resolved through
// local-variable and field types, and object creation.
type JavaAnalyzer struct {
	maxFileSize int64
}

// NewJavaAnalyzer creates a JavaAnalyzer with the given options.
func NewJavaAnalyzer(opts ...JavaAnalyzerOption) *JavaAnalyzer {
	a := &JavaAnalyzer{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Language returns "java".
func (a *JavaAnalyzer) Language() string { return "java" }

// Extensions returns the file extensions handled by this analyzer.
func (a *JavaAnalyzer) Extensions() []string { return []string{".java"} }

// javaState holds per-file extraction state.
type javaState struct {
	filePath string
	relPath  string
	modPath  string
	pkg      string
	content  []byte
	lines    []string
	imports  map[string]string // simple name -> fully qualified name
	statics  map[string]string // static member -> fully qualified name
	topLevel map[string]bool   // type names declared in this file
	comps    []*Component
	edges    []DependencyEdge
}

// Analyze parses Java source and extracts components and dependency edges.
func (a *JavaAnalyzer) Analyze(ctx context.Context, content []byte, filePath, repoRoot string) ([]*Component, []DependencyEdge, error) {
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
	parser.SetLanguage(java.GetLanguage())

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
	st := &javaState{
		filePath: filePath,
		relPath:  rel,
		modPath:  modulePath(rel, ".java"),
		content:  content,
		lines:    strings.Split(string(content), "\n"),
		imports:  make(map[string]string),
		statics:  make(map[string]string),
		topLevel: make(map[string]bool),
	}

	a.collectPackageAndImports(root, st)
	a.collectTypeNames(root, st)
	a.extractDeclarations(root, st)
	a.extractEdges(root, st)

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("analyze canceled after extraction: %w", err)
	}
	return st.comps, st.edges, nil
}

// text returns the source text of a node.
func (st *javaState) text(node *sitter.Node) string {
	return string(st.content[node.StartByte():node.EndByte()])
}

// collectPackageAndImports reads the package declaration and import table.
// Wildcard imports cannot be tracked precisely and are skipped.
func (a *JavaAnalyzer) collectPackageAndImports(root *sitter.Node, st *javaState) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "package_declaration":
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if gc.Type() == "scoped_identifier" || gc.Type() == "identifier" {
					st.pkg = st.text(gc)
					break
				}
			}
		case "import_declaration":
			isStatic := false
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "static" {
					isStatic = true
					break
				}
			}
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if gc.Type() != "scoped_identifier" && gc.Type() != "identifier" {
					continue
				}
				full := st.text(gc)
				if strings.HasSuffix(full, ".*") {
					continue
				}
				simple := full
				if idx := strings.LastIndex(full, "."); idx >= 0 {
					simple = full[idx+1:]
				}
				if isStatic {
					st.statics[simple] = full
				} else {
					st.imports[simple] = full
				}
			}
		}
	}
}

// collectTypeNames records every type declared anywhere in the file so that
// same-file references resolve regardless of declaration order.
func (a *JavaAnalyzer) collectTypeNames(node *sitter.Node, st *javaState) {
	switch node.Type() {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		if name := javaIdentifier(node, st); name != "" {
			st.topLevel[name] = true
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.collectTypeNames(node.Child(i), st)
	}
}

// extractDeclarations recursively builds components from type and method
// declarations.
func (a *JavaAnalyzer) extractDeclarations(node *sitter.Node, st *javaState) {
	switch node.Type() {
	case "class_declaration":
		kind := KindClass
		if javaHasModifier(node, st, "abstract") {
			kind = KindAbstractClass
		}
		a.addTypeComponent(node, st, kind, "class")
	case "interface_declaration":
		a.addTypeComponent(node, st, KindInterface, "interface")
	case "enum_declaration":
		a.addTypeComponent(node, st, KindEnum, "enum")
	case "record_declaration":
		a.addTypeComponent(node, st, KindRecord, "record")
	case "annotation_type_declaration":
		a.addTypeComponent(node, st, KindAnnotation, "@interface")
	case "method_declaration":
		a.addMethodComponent(node, st)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		a.extractDeclarations(node.Child(i), st)
	}
}

// addTypeComponent appends one type declaration component.
func (a *JavaAnalyzer) addTypeComponent(node *sitter.Node, st *javaState, kind ComponentKind, keyword string) {
	name := javaIdentifier(node, st)
	if name == "" {
		return
	}
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	annotations := a.extractAnnotations(node, st)
	doc := a.extractJavadoc(node, st)
	bases := a.classHierarchy(node, st)

	display := keyword + " " + name
	if len(annotations) > 0 {
		display = strings.Join(annotations, " ") + " " + display
	}

	comp := &Component{
		ID:           st.modPath + "." + name,
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
	if len(annotations) > 0 || len(bases) > 0 {
		comp.Attributes = &Attributes{Decorators: annotations, BaseClasses: bases}
	}
	st.comps = append(st.comps, comp)
}

// addMethodComponent appends one method declaration component.
func (a *JavaAnalyzer) addMethodComponent(node *sitter.Node, st *javaState) {
	className := javaContainingTypeName(node, st)
	methodName, paramTypes, returnType := a.methodSignature(node, st)
	if methodName == "" {
		return
	}
	name := methodName
	if className != "" {
		name = className + "." + methodName
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	annotations := a.extractAnnotations(node, st)
	doc := a.extractJavadoc(node, st)

	display := fmt.Sprintf("%s %s(%s)", returnType, methodName, strings.Join(paramTypes, ", "))
	if len(annotations) > 0 {
		display = strings.Join(annotations, " ") + " " + display
	}

	comp := &Component{
		ID:           st.modPath + "." + name,
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
	if len(annotations) > 0 || len(paramTypes) > 0 || returnType != "" {
		comp.Attributes = &Attributes{
			Decorators: annotations,
			Parameters: paramTypes,
			ReturnType: returnType,
		}
	}
	st.comps = append(st.comps, comp)
}

// methodSignature returns the method name, parameter types, and return type.
func (a *JavaAnalyzer) methodSignature(node *sitter.Node, st *javaState) (string, []string, string) {
	var name, returnType string
	var paramTypes []string

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = st.text(child)
		case "type_identifier", "generic_type", "void_type",
			"integral_type", "floating_point_type", "boolean_type":
			returnType = st.text(child)
		case "formal_parameters":
			for j := 0; j < int(child.ChildCount()); j++ {
				p := child.Child(j)
				if p.Type() != "formal_parameter" {
					continue
				}
				for k := 0; k < int(p.ChildCount()); k++ {
					pc := p.Child(k)
					switch pc.Type() {
					case "type_identifier", "generic_type", "array_type", "integral_type":
						paramTypes = append(paramTypes, st.text(pc))
					}
				}
			}
		}
	}
	return name, paramTypes, returnType
}

// extractAnnotations returns annotation names on a declaration, formatted
// "@Name" or "@Name(...)".
func (a *JavaAnalyzer) extractAnnotations(node *sitter.Node, st *javaState) []string {
	var annotations []string
	appendAnnotation := func(n *sitter.Node, withArgs bool) {
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "identifier" {
				name := "@" + st.text(n.Child(i))
				if withArgs {
					name += "(...)"
				}
				annotations = append(annotations, name)
				return
			}
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "modifiers":
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "marker_annotation":
					appendAnnotation(gc, false)
				case "annotation":
					appendAnnotation(gc, true)
				}
			}
		case "marker_annotation":
			appendAnnotation(child, false)
		case "annotation":
			appendAnnotation(child, true)
		}
	}
	return annotations
}

// extractJavadoc returns the cleaned Javadoc text preceding a declaration,
// skipping over annotations between the comment and the declaration.
func (a *JavaAnalyzer) extractJavadoc(node *sitter.Node, st *javaState) string {
	prev := node.PrevSibling()
	for prev != nil {
		switch prev.Type() {
		case "block_comment":
			text := st.text(prev)
			if !strings.HasPrefix(text, "/**") {
				return ""
			}
			var cleaned []string
			for _, line := range strings.Split(text, "\n") {
				line = strings.TrimSpace(line)
				switch {
				case strings.HasPrefix(line, "/**"):
					line = strings.TrimSpace(line[3:])
				case strings.HasPrefix(line, "*/"):
					continue
				case strings.HasPrefix(line, "*"):
					line = strings.TrimSpace(line[1:])
				}
				if line != "" {
					cleaned = append(cleaned, line)
				}
			}
			return strings.Join(cleaned, " ")
		case "marker_annotation", "annotation":
			prev = prev.PrevSibling()
		default:
			return ""
		}
	}
	return ""
}

// classHierarchy returns human-readable extends/implements entries.
func (a *JavaAnalyzer) classHierarchy(node *sitter.Node, st *javaState) []string {
	var hierarchy []string
	if super := javaChildOfType(node, "superclass"); super != nil {
		if base := a.typeName(super, st); base != "" {
			hierarchy = append(hierarchy, "extends "+base)
		}
	}
	if ifaces := a.superInterfaces(node, st); len(ifaces) > 0 {
		hierarchy = append(hierarchy, "implements "+strings.Join(ifaces, ", "))
	}
	return hierarchy
}

// superInterfaces returns the interface names in a super_interfaces clause.
func (a *JavaAnalyzer) superInterfaces(node *sitter.Node, st *javaState) []string {
	var ifaces []string
	si := javaChildOfType(node, "super_interfaces")
	if si == nil {
		return nil
	}
	for i := 0; i < int(si.ChildCount()); i++ {
		child := si.Child(i)
		if child.Type() != "type_list" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			tc := child.Child(j)
			if tc.Type() == "type_identifier" || tc.Type() == "generic_type" {
				if name := a.typeName(tc, st); name != "" {
					ifaces = append(ifaces, name)
				}
			}
		}
	}
	return ifaces
}

// extractEdges recursively collects dependency edges: inheritance, interface
// implementation, field types, method invocations, and object creation.
func (a *JavaAnalyzer) extractEdges(node *sitter.Node, st *javaState) {
	line := int(node.StartPoint().Row) + 1

	switch node.Type() {
	case "class_declaration":
		name := javaIdentifier(node, st)
		if super := javaChildOfType(node, "superclass"); super != nil && name != "" {
			if base := a.typeName(super, st); base != "" && !javaBuiltins[base] {
				a.addTypeEdge(st, st.modPath+"."+name, base, line)
			}
		}
		a.addInterfaceEdges(node, st, name, line)

	case "enum_declaration", "record_declaration":
		a.addInterfaceEdges(node, st, javaIdentifier(node, st), line)

	case "field_declaration":
		caller := javaContainingTypeID(node, st)
		if tn := javaChildOfTypes(node, "type_identifier", "generic_type"); caller != "" && tn != nil {
			if fieldType := a.typeName(tn, st); fieldType != "" && !javaBuiltins[fieldType] {
				a.addTypeEdge(st, caller, fieldType, line)
			}
		}

	case "method_invocation":
		a.addInvocationEdge(node, st, line)

	case "object_creation_expression":
		caller := javaContainingTypeID(node, st)
		if tn := javaChildOfTypes(node, "type_identifier", "generic_type"); caller != "" && tn != nil {
			if created := a.typeName(tn, st); created != "" && !javaBuiltins[created] {
				a.addTypeEdge(st, caller, created, line)
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		a.extractEdges(node.Child(i), st)
	}
}

// addInterfaceEdges records implements edges for a type declaration.
func (a *JavaAnalyzer) addInterfaceEdges(node *sitter.Node, st *javaState, name string, line int) {
	if name == "" {
		return
	}
	for _, iface := range a.superInterfaces(node, st) {
		if !javaBuiltins[iface] {
			a.addTypeEdge(st, st.modPath+"."+name, iface, line)
		}
	}
}

// addInvocationEdge records an edge for obj.method() when the receiver type
// can be determined from a same-file type name, a local variable declaration,
// or a field declaration.
func (a *JavaAnalyzer) addInvocationEdge(node *sitter.Node, st *javaState, line int) {
	callerType := javaContainingTypeID(node, st)
	if callerType == "" {
		return
	}
	caller := callerType
	if m := javaContainingMethodID(node, st); m != "" {
		caller = m
	}

	obj := node.ChildByFieldName("object")
	if obj == nil || obj.Type() != "identifier" {
		return
	}
	objName := st.text(obj)

	targetType := objName
	if !st.topLevel[objName] {
		targetType = a.variableType(node, objName, st)
	}
	if targetType == "" || javaBuiltins[targetType] {
		return
	}
	a.addTypeEdge(st, caller, targetType, line)
}

// variableType resolves a variable name to its declared type by scanning the
// enclosing method's blocks and then the enclosing class's fields.
func (a *JavaAnalyzer) variableType(node *sitter.Node, varName string, st *javaState) string {
	for m := node.Parent(); m != nil; m = m.Parent() {
		if m.Type() != "method_declaration" {
			continue
		}
		if body := javaChildOfType(m, "block"); body != nil {
			if t := a.searchVarDecl(body, varName, st); t != "" {
				return t
			}
		}
		break
	}
	for c := node.Parent(); c != nil; c = c.Parent() {
		if c.Type() != "class_declaration" {
			continue
		}
		body := javaChildOfType(c, "class_body")
		if body == nil {
			break
		}
		for i := 0; i < int(body.ChildCount()); i++ {
			field := body.Child(i)
			if field.Type() != "field_declaration" {
				continue
			}
			var typeNode, ident *sitter.Node
			for j := 0; j < int(field.ChildCount()); j++ {
				fc := field.Child(j)
				switch fc.Type() {
				case "type_identifier", "generic_type":
					typeNode = fc
				case "variable_declarator":
					ident = javaChildOfType(fc, "identifier")
				}
			}
			if ident != nil && typeNode != nil && st.text(ident) == varName {
				return a.typeName(typeNode, st)
			}
		}
		break
	}
	return ""
}

// searchVarDecl scans a block (and nested blocks) for a local variable
// declaration of varName, returning its type.
func (a *JavaAnalyzer) searchVarDecl(block *sitter.Node, varName string, st *javaState) string {
	for i := 0; i < int(block.ChildCount()); i++ {
		child := block.Child(i)
		switch child.Type() {
		case "local_variable_declaration":
			var typeNode, ident *sitter.Node
			for j := 0; j < int(child.ChildCount()); j++ {
				dc := child.Child(j)
				switch dc.Type() {
				case "type_identifier", "generic_type":
					typeNode = dc
				case "variable_declarator":
					ident = javaChildOfType(dc, "identifier")
				}
			}
			if ident != nil && typeNode != nil && st.text(ident) == varName {
				return a.typeName(typeNode, st)
			}
		case "block":
			if t := a.searchVarDecl(child, varName, st); t != "" {
				return t
			}
		}
	}
	return ""
}

// addTypeEdge records a dependency on a type name, resolving same-file types
// to their component id and imported types to their qualified name.
func (a *JavaAnalyzer) addTypeEdge(st *javaState, caller, typeName string, line int) {
	switch {
	case strings.Contains(typeName, "."):
		st.addEdge(caller, typeName, line, false)
	case st.topLevel[typeName]:
		st.addEdge(caller, st.modPath+"."+typeName, line, true)
	default:
		if full, ok := st.imports[typeName]; ok {
			st.addEdge(caller, full, line, false)
		} else {
			st.addEdge(caller, typeName, line, false)
		}
	}
}

// typeName extracts the simple type name from a type node, unwrapping
// generic_type and superclass wrappers.
func (a *JavaAnalyzer) typeName(node *sitter.Node, st *javaState) string {
	switch node.Type() {
	case "type_identifier":
		return st.text(node)
	case "generic_type", "superclass":
		if tn := javaChildOfType(node, "type_identifier"); tn != nil {
			return st.text(tn)
		}
	}
	return ""
}

// javaIdentifier returns the first identifier child's text.
func javaIdentifier(node *sitter.Node, st *javaState) string {
	if id := javaChildOfType(node, "identifier"); id != nil {
		return st.text(id)
	}
	return ""
}

// javaHasModifier reports whether the declaration carries a modifier keyword.
func javaHasModifier(node *sitter.Node, st *javaState, modifier string) bool {
	mods := javaChildOfType(node, "modifiers")
	if mods == nil {
		return false
	}
	for i := 0; i < int(mods.ChildCount()); i++ {
		if st.text(mods.Child(i)) == modifier {
			return true
		}
	}
	return false
}

// javaChildOfType returns the first direct child of the given type.
func javaChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == nodeType {
			return node.Child(i)
		}
	}
	return nil
}

// javaChildOfTypes returns the first direct child matching any given type.
func javaChildOfTypes(node *sitter.Node, nodeTypes ...string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		for _, t := range nodeTypes {
			if node.Child(i).Type() == t {
				return node.Child(i)
			}
		}
	}
	return nil
}

// javaContainingTypeName returns the name of the nearest enclosing type
// declaration, or "".
func javaContainingTypeName(node *sitter.Node, st *javaState) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			return javaIdentifier(cur, st)
		}
	}
	return ""
}

// javaContainingTypeID returns the component id of the nearest enclosing
// type declaration, or "".
func javaContainingTypeID(node *sitter.Node, st *javaState) string {
	if name := javaContainingTypeName(node, st); name != "" {
		return st.modPath + "." + name
	}
	return ""
}

// javaContainingMethodID returns the component id of the nearest enclosing
// method declaration, or "".
func javaContainingMethodID(node *sitter.Node, st *javaState) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() != "method_declaration" {
			continue
		}
		method := javaIdentifier(cur, st)
		class := javaContainingTypeName(cur, st)
		if method != "" && class != "" {
			return st.modPath + "." + class + "." + method
		}
		return ""
	}
	return ""
}

// addEdge appends a dependency edge.
func (st *javaState) addEdge(caller, callee string, line int, resolved bool) {
	st.edges = append(st.edges, DependencyEdge{
		CallerID: caller,
		CalleeID: callee,
		Line:     line,
		Resolved: resolved,
	})
}

// Compile-time interface compliance check.
var _ Analyzer = (*JavaAnalyzer)(nil)
