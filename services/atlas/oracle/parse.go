// Copyright (C) 2025 Code Atlas AI (oss@codeatlas.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Delimiters around the grouping payload in an oracle response.
const (
	openTag  = "<GROUPED_COMPONENTS>"
	closeTag = "</GROUPED_COMPONENTS>"
)

// ParseError reports an unrecoverable response-parsing failure, carrying a
// snippet of the offending content for logs.
type ParseError struct {
	// Reason describes which stage failed.
	Reason string

	// Snippet is a truncated preview of the content that failed to parse.
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse oracle response: %s: %q", e.Reason, e.Snippet)
}

// snippet truncates content for error messages.
func snippet(content string) string {
	if len(content) > 200 {
		return content[:200] + "..."
	}
	return content
}

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)
	jsonBlock        = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ParseGrouping extracts and parses the grouping payload from a raw oracle
// response.
//
// The payload must sit between <GROUPED_COMPONENTS> tags. The content is
// then run through a chain of increasingly tolerant strategies: strict JSON,
// quote and trailing-comma repair, Python-literal conversion, and finally
// balanced-block extraction with repair. Returns a *ParseError when every
// strategy fails.
func ParseGrouping(response string) (Grouping, error) {
	openIdx := strings.Index(response, openTag)
	closeIdx := strings.Index(response, closeTag)
	if openIdx < 0 || closeIdx < 0 || closeIdx < openIdx {
		return nil, &ParseError{
			Reason:  "missing component tags",
			Snippet: snippet(response),
		}
	}
	content := strings.TrimSpace(response[openIdx+len(openTag) : closeIdx])

	for _, parse := range []func(string) (Grouping, bool){
		parseStrict,
		parseRepaired,
		parseLiteral,
		parseExtractedBlock,
	} {
		if g, ok := parse(content); ok {
			return g, nil
		}
	}

	slog.Error("all parsing strategies failed", slog.String("content", snippet(content)))
	return nil, &ParseError{
		Reason:  "no strategy could parse content",
		Snippet: snippet(content),
	}
}

// parseStrict attempts standard JSON decoding.
func parseStrict(content string) (Grouping, bool) {
	return decodeGrouping(content)
}

// parseRepaired fixes the common almost-JSON mistakes: single quotes and
// trailing commas.
func parseRepaired(content string) (Grouping, bool) {
	return decodeGrouping(repairJSON(content))
}

// parseLiteral converts Python literal syntax (single quotes, True/False/
// None) to JSON before decoding.
func parseLiteral(content string) (Grouping, bool) {
	fixed := strings.NewReplacer(
		"True", "true",
		"False", "false",
		"None", "null",
	).Replace(content)
	return decodeGrouping(repairJSON(fixed))
}

// parseExtractedBlock pulls the outermost braced block out of surrounding
// prose, then repairs and decodes it.
func parseExtractedBlock(content string) (Grouping, bool) {
	block := jsonBlock.FindString(content)
	if block == "" {
		return nil, false
	}
	return decodeGrouping(repairJSON(block))
}

// repairJSON swaps single quotes for double quotes and strips trailing
// commas before closing braces and brackets.
func repairJSON(content string) string {
	fixed := strings.ReplaceAll(content, "'", `"`)
	fixed = trailingCommaObj.ReplaceAllString(fixed, "}")
	fixed = trailingCommaArr.ReplaceAllString(fixed, "]")
	return fixed
}

// decodeGrouping unmarshals one module map, tolerating malformed entries.
//
// A module whose value is not an object, or whose components field is not a
// list of strings, is dropped with a warning rather than failing the whole
// payload.
func decodeGrouping(content string) (Grouping, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, false
	}

	grouping := make(Grouping, len(raw))
	for name, body := range raw {
		var entry struct {
			Path       string            `json:"path"`
			Components []json.RawMessage `json:"components"`
		}
		if err := json.Unmarshal(body, &entry); err != nil {
			slog.Warn("skipping malformed module entry", slog.String("module", name))
			continue
		}

		group := ModuleGroup{Path: entry.Path}
		for _, comp := range entry.Components {
			var id string
			if err := json.Unmarshal(comp, &id); err != nil {
				continue
			}
			group.Components = append(group.Components, id)
		}
		grouping[name] = group
	}
	return grouping, true
}
