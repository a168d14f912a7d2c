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
	"path/filepath"
	"strings"
	"time"
)

// File size limits shared by all analyzers.
const (
	// DefaultMaxFileSize is the maximum file size accepted for parsing (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize triggers a warning log for unusually large files (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// registered holds the default analyzer for each language tag.
var registered = func() map[string]Analyzer {
	analyzers := []Analyzer{
		NewPythonAnalyzer(),
		NewJavaAnalyzer(),
		NewGoAnalyzer(),
	}
	m := make(map[string]Analyzer, len(analyzers))
	for _, a := range analyzers {
		m[a.Language()] = a
	}
	return m
}()

// ForLanguage returns the analyzer for a language tag.
//
// Returns ErrUnsupportedLanguage when no analyzer handles the tag.
func ForLanguage(language string) (Analyzer, error) {
	if a, ok := registered[strings.ToLower(language)]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

// ForPath returns the analyzer that handles the file's extension.
//
// Returns ErrUnsupportedLanguage when no analyzer claims the extension.
func ForPath(path string) (Analyzer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range registered {
		for _, e := range a.Extensions() {
			if e == ext {
				return a, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedLanguage, ext)
}

// Languages returns the supported language tags in arbitrary order.
func Languages() []string {
	out := make([]string, 0, len(registered))
	for lang := range registered {
		out = append(out, lang)
	}
	return out
}

// Run analyzes one file input, selecting the analyzer from the input's
// language tag (or the file extension when the tag is empty) and recording
// extraction metrics.
//
// A parse failure is returned as an error wrapping the file path; callers
// are expected to log it and continue with the remaining files.
func Run(ctx context.Context, in FileInput, repoRoot string) ([]*Component, []DependencyEdge, error) {
	var (
		a   Analyzer
		err error
	)
	if in.Language != "" {
		a, err = ForLanguage(in.Language)
	} else {
		a, err = ForPath(in.Path)
	}
	if err != nil {
		return nil, nil, &FileError{Path: in.Path, Err: err}
	}

	ctx, span := startAnalyzeSpan(ctx, a.Language(), in.Path, len(in.Content))
	defer span.End()

	start := time.Now()
	components, edges, err := a.Analyze(ctx, in.Content, in.Path, repoRoot)
	if err != nil {
		recordAnalyzeMetrics(ctx, a.Language(), time.Since(start), 0, false)
		return nil, nil, &FileError{Path: in.Path, Err: err}
	}

	recordAnalyzeMetrics(ctx, a.Language(), time.Since(start), len(components), true)
	setAnalyzeSpanResult(span, len(components), len(edges))
	return components, edges, nil
}

// relativePath returns path relative to repoRoot with forward slashes,
// falling back to the input path when it cannot be made relative.
func relativePath(path, repoRoot string) string {
	if repoRoot == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(repoRoot, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// modulePath converts a repo-relative file path to a dotted module path,
// stripping any of the given extensions first.
//
// Example: "pkg/util/helpers.py" -> "pkg.util.helpers"
func modulePath(relPath string, extensions ...string) string {
	p := relPath
	for _, ext := range extensions {
		if strings.HasSuffix(p, ext) {
			p = p[:len(p)-len(ext)]
			break
		}
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.ReplaceAll(p, "/", ".")
}

// sourceSlice returns the source text between 1-indexed start and end lines,
// inclusive. Out-of-range bounds are clamped.
func sourceSlice(lines []string, startLine, endLine int) string {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
