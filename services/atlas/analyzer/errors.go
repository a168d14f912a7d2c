// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"errors"
	"fmt"
)

// Sentinel errors for the analyzer package.
var (
	// ErrFileTooLarge is returned when a file exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent is returned when file content is not valid UTF-8.
	ErrInvalidContent = errors.New("file content is not valid UTF-8")

	// ErrParseFailed is returned when the parser cannot produce a tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrUnsupportedLanguage is returned when no analyzer handles a language tag.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrDuplicateComponent is returned when two components share an id.
	ErrDuplicateComponent = errors.New("duplicate component id")

	// ErrRegistryFrozen is returned when writing to a frozen registry.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// FileError wraps an error with the file that caused it.
type FileError struct {
	// Path is the file that failed.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *FileError) Unwrap() error {
	return e.Err
}
