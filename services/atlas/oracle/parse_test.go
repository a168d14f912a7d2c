// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrapTags(content string) string {
	return "Here is the grouping:\n<GROUPED_COMPONENTS>\n" + content + "\n</GROUPED_COMPONENTS>\nDone."
}

func TestParseGrouping_StrictJSON(t *testing.T) {
	response := wrapTags(`{
		"core": {"path": "src/core", "components": ["a.X", "a.Y"]},
		"util": {"path": "src/util", "components": ["b.Z"]}
	}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	require.Len(t, g, 2)

	assert.Equal(t, "src/core", g["core"].Path)
	assert.Equal(t, []string{"a.X", "a.Y"}, g["core"].Components)
	assert.Equal(t, []string{"b.Z"}, g["util"].Components)
	assert.Equal(t, []string{"core", "util"}, g.Names())
}

func TestParseGrouping_SingleQuotesRepaired(t *testing.T) {
	response := wrapTags(`{'core': {'path': 'src', 'components': ['a.X']}}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.X"}, g["core"].Components)
}

func TestParseGrouping_TrailingCommasRepaired(t *testing.T) {
	response := wrapTags(`{
		"core": {"path": "src", "components": ["a.X", "a.Y",],},
	}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.X", "a.Y"}, g["core"].Components)
}

func TestParseGrouping_PythonLiterals(t *testing.T) {
	response := wrapTags(`{'core': {'path': None, 'components': ['a.X']}}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.X"}, g["core"].Components)
	assert.Equal(t, "", g["core"].Path)
}

func TestParseGrouping_BlockExtractedFromProse(t *testing.T) {
	response := wrapTags(`Sure! Based on the structure I suggest:
{"core": {"path": "src", "components": ["a.X"]}}
Hope this helps.`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.X"}, g["core"].Components)
}

func TestParseGrouping_MissingTags(t *testing.T) {
	_, err := ParseGrouping(`{"core": {"components": ["a.X"]}}`)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "missing component tags")
}

func TestParseGrouping_ClosingTagBeforeOpening(t *testing.T) {
	_, err := ParseGrouping("</GROUPED_COMPONENTS>{}<GROUPED_COMPONENTS>")
	require.Error(t, err)

	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestParseGrouping_Unparseable(t *testing.T) {
	_, err := ParseGrouping(wrapTags("not a mapping at all"))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "no strategy")
}

func TestParseGrouping_MalformedEntriesSkipped(t *testing.T) {
	response := wrapTags(`{
		"good": {"path": "src", "components": ["a.X"]},
		"bad": "just a string",
		"mixed": {"path": "p", "components": ["a.Y", 42, "a.Z"]}
	}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	require.Len(t, g, 2)

	assert.Equal(t, []string{"a.X"}, g["good"].Components)
	// Non-string member ids are dropped, the rest survive.
	assert.Equal(t, []string{"a.Y", "a.Z"}, g["mixed"].Components)
}

func TestParseGrouping_MissingComponentsField(t *testing.T) {
	response := wrapTags(`{"core": {"path": "src"}}`)

	g, err := ParseGrouping(response)
	require.NoError(t, err)
	require.Contains(t, g, "core")
	assert.Empty(t, g["core"].Components)
}
