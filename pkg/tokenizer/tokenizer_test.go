// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("ab"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
	assert.Equal(t, 25, Estimate(strings.Repeat("x", 100)))
}

func TestCounter_Monotonic(t *testing.T) {
	c := New("")

	short := c.Count("hello world")
	long := c.Count(strings.Repeat("hello world ", 100))

	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestCounter_EmptyText(t *testing.T) {
	c := New(DefaultEncoding)
	assert.Equal(t, 0, c.Count(""))
}

func TestCounter_UnknownEncodingFallsBack(t *testing.T) {
	c := New("no-such-encoding")

	// Degrades to the bytes/4 estimate rather than failing.
	assert.Equal(t, Estimate("abcdefgh"), c.Count("abcdefgh"))
}
