// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tokenizer counts LLM tokens for budget decisions.
//
// The partitioner sizes module renderings against a token budget; counts
// here only need to be consistent and close, not exact. When the tiktoken
// encoding cannot be loaded (offline environments fetch encodings lazily),
// the counter degrades to a bytes/4 estimate instead of failing.
package tokenizer

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the cl100k_base encoding used by recent OpenAI models.
const DefaultEncoding = "cl100k_base"

// Counter estimates the token count of text.
type Counter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding, falling back to a
// bytes/4 estimate when the encoding is unavailable.
//
// Safe for concurrent use.
type TiktokenCounter struct {
	once     sync.Once
	encoding string
	enc      *tiktoken.Tiktoken
}

// New creates a counter for the given encoding name. An empty name selects
// DefaultEncoding.
//
// Encoding initialization is deferred to the first Count call so that
// construction never fails.
func New(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

// Count returns the token count of text.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, using byte estimate",
				slog.String("encoding", c.encoding),
				slog.String("error", err.Error()))
			return
		}
		c.enc = enc
	})

	if c.enc == nil {
		return estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// estimate approximates tokens as bytes/4, rounded up.
func estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Estimate is the fallback heuristic exposed for callers that want a cheap
// upper-level guess without an encoding.
func Estimate(text string) int {
	return estimate(text)
}

// Compile-time interface compliance check.
var _ Counter = (*TiktokenCounter)(nil)
