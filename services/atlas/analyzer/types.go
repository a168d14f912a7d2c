// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analyzer provides per-language extraction of code components and
// dependency edges.
//
// Each language implementation parses one source file at a time and produces
// output conforming to the types in this file: a list of Components (classes,
// functions, methods, ...) and a list of DependencyEdges between component
// ids. Analyzers are stateless per file and safe for concurrent use; results
// from many files are merged into a single Registry by the pipeline.
//
// Design principles:
//   - Language-agnostic component model; language specifics go in Attributes
//   - Component ids are dotted paths derived from file path + enclosing scope
//   - A file that fails to parse contributes nothing and never aborts a run
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ComponentKind classifies a code component.
//
// Kinds are split into two families: object-oriented kinds (class, interface,
// struct, ...) and function-like kinds (function, async_function, method).
// The candidate selector uses this split to decide which kinds are eligible
// for module partitioning.
type ComponentKind int

const (
	// KindUnknown indicates an unrecognized component.
	KindUnknown ComponentKind = iota

	// KindClass represents a concrete class definition.
	KindClass

	// KindAbstractClass represents an abstract class (Java abstract, Python ABC).
	KindAbstractClass

	// KindInterface represents an interface or protocol definition.
	KindInterface

	// KindEnum represents an enumeration type.
	KindEnum

	// KindRecord represents a record/data class.
	KindRecord

	// KindAnnotation represents a Java annotation type.
	KindAnnotation

	// KindStruct represents a composite value type (Go struct).
	KindStruct

	// KindFunction represents a standalone function.
	KindFunction

	// KindAsyncFunction represents an async standalone function.
	KindAsyncFunction

	// KindMethod represents a function attached to a type.
	KindMethod
)

var kindNames = map[ComponentKind]string{
	KindUnknown:       "unknown",
	KindClass:         "class",
	KindAbstractClass: "abstract_class",
	KindInterface:     "interface",
	KindEnum:          "enum",
	KindRecord:        "record",
	KindAnnotation:    "annotation",
	KindStruct:        "struct",
	KindFunction:      "function",
	KindAsyncFunction: "async_function",
	KindMethod:        "method",
}

// String returns the string representation of the kind.
//
// Returns "unknown" for unrecognized values.
func (k ComponentKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the kind as a JSON string for readability.
func (k ComponentKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts both string and numeric kind values.
func (k *ComponentKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseComponentKind(s)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("ComponentKind must be string or int: %w", err)
	}
	*k = ComponentKind(i)
	return nil
}

// ParseComponentKind converts a string to a ComponentKind.
//
// Returns KindUnknown if the string is not recognized.
func ParseComponentKind(s string) ComponentKind {
	for kind, name := range kindNames {
		if name == s {
			return kind
		}
	}
	return KindUnknown
}

// IsObjectOriented reports whether the kind belongs to the OOP family
// (classes, interfaces, structs, enums, records, annotations).
func (k ComponentKind) IsObjectOriented() bool {
	switch k {
	case KindClass, KindAbstractClass, KindInterface, KindEnum, KindRecord, KindAnnotation, KindStruct:
		return true
	default:
		return false
	}
}

// IsFunctionLike reports whether the kind belongs to the function family.
func (k ComponentKind) IsFunctionLike() bool {
	switch k {
	case KindFunction, KindAsyncFunction, KindMethod:
		return true
	default:
		return false
	}
}

// Attributes carries language-specific component metadata.
//
// This replaces the loosely-typed parameter/base-class overloading found in
// some extraction pipelines with named fields. All fields are optional.
type Attributes struct {
	// Decorators lists decorator or annotation names applied to the component.
	Decorators []string `json:"decorators,omitempty"`

	// BaseClasses lists parent class and implemented interface names.
	BaseClasses []string `json:"base_classes,omitempty"`

	// Parameters lists parameter declarations, including type annotations
	// where the language provides them (e.g. "limit: int").
	Parameters []string `json:"parameters,omitempty"`

	// ReturnType is the declared return type, if any.
	ReturnType string `json:"return_type,omitempty"`
}

// Component is a uniquely identified unit of source code extracted from one
// file: a class, function, method, interface, and so on.
//
// Invariant: ID is derived deterministically from the file's repo-relative
// path plus the enclosing scope names, and is unique within one analysis run.
type Component struct {
	// ID is the globally unique dotted path, e.g. "pkg.module.Class.method".
	ID string `json:"id"`

	// Name is the identifier as written in source.
	Name string `json:"name"`

	// Kind classifies the component.
	Kind ComponentKind `json:"kind"`

	// FilePath is the path handed to the analyzer (may be absolute).
	FilePath string `json:"file_path"`

	// RelativePath is the path relative to the repository root, with
	// forward slashes.
	RelativePath string `json:"relative_path"`

	// SourceCode is the component's full source text.
	SourceCode string `json:"source_code"`

	// StartLine is the 1-indexed first line of the definition.
	StartLine int `json:"start_line"`

	// EndLine is the 1-indexed last line of the definition.
	EndLine int `json:"end_line"`

	// HasDoc reports whether the component carries documentation
	// (docstring, Javadoc, doc comment).
	HasDoc bool `json:"has_doc"`

	// Doc is the documentation text, empty when HasDoc is false.
	Doc string `json:"doc,omitempty"`

	// DisplayName is a human-oriented rendering such as "class Config" or
	// "async function fetch -> Response".
	DisplayName string `json:"display_name"`

	// Attributes holds optional language-specific metadata.
	Attributes *Attributes `json:"attributes,omitempty"`
}

// Validate checks the component's field values.
//
// Returns nil if valid, or a ValidationError describing the first invalid
// field.
func (c *Component) Validate() error {
	if c.ID == "" {
		return ValidationError{Field: "ID", Message: "must not be empty"}
	}
	if c.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}
	if c.RelativePath == "" {
		return ValidationError{Field: "RelativePath", Message: "must not be empty"}
	}
	if strings.Contains(c.RelativePath, "..") {
		return ValidationError{Field: "RelativePath", Message: "must not contain path traversal (..)"}
	}
	if c.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}
	if c.EndLine < c.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}
	return nil
}

// LineCount returns the number of source lines the component spans.
func (c *Component) LineCount() int {
	if c.SourceCode == "" {
		return 0
	}
	return strings.Count(c.SourceCode, "\n") + 1
}

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DependencyEdge is a directed relationship "caller depends on callee"
// inferred from a call, inheritance, field type, or object construction.
type DependencyEdge struct {
	// CallerID is the component id of the dependent.
	CallerID string `json:"caller_id"`

	// CalleeID is the component id (or best-effort name) of the dependency.
	CalleeID string `json:"callee_id"`

	// Line is the 1-indexed source line where the reference appears.
	Line int `json:"line"`

	// Resolved is true only when CalleeID was matched against a component
	// known to exist at extraction time (same-file lookup or receiver
	// resolution). False means "best-effort name, may not resolve to
	// anything in this repo".
	Resolved bool `json:"resolved"`
}

// FileInput is one source file handed to the engine: a path, its UTF-8
// content, and a language tag ("python", "java", "go").
type FileInput struct {
	// Path is the file path, absolute or repo-relative.
	Path string `json:"path"`

	// Content is the full UTF-8 file text.
	Content []byte `json:"-"`

	// Language selects the analyzer. Empty means "infer from extension".
	Language string `json:"language"`
}

// Analyzer extracts components and dependency edges from one source file.
//
// Implementations must be safe for concurrent use; every Analyze call
// operates on its own state.
type Analyzer interface {
	// Analyze parses content and returns the extracted components and raw
	// dependency edges. A parse failure returns a non-nil error and no
	// results; callers skip the file and continue.
	Analyze(ctx context.Context, content []byte, filePath, repoRoot string) ([]*Component, []DependencyEdge, error)

	// Language returns the canonical language tag handled by this analyzer.
	Language() string

	// Extensions returns the file extensions this analyzer handles.
	Extensions() []string
}
