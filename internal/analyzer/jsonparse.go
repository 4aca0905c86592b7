package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns for cleaning up LLM JSON output. Compiling on
// every parse is an order of magnitude slower.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// parseResponse parses JSON out of an LLM response, tolerating the usual
// formatting quirks. Strategy sequence:
//  1. Direct JSON parse
//  2. Strip markdown code fences and retry
//  3. Remove trailing commas and retry
//  4. Extract the first JSON object/array from mixed content and retry
func parseResponse[T any](text, context string) (T, error) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("%s: empty response", context)
	}

	if v, err := tryParse[T](trimmed); err == nil {
		return v, nil
	}

	withoutFences := strings.TrimSpace(codeFenceRegex.ReplaceAllString(trimmed, "$1"))
	if withoutFences != trimmed {
		if v, err := tryParse[T](withoutFences); err == nil {
			return v, nil
		}
	}

	cleaned := trailingCommaRegex.ReplaceAllString(withoutFences, "$1")
	if v, err := tryParse[T](cleaned); err == nil {
		return v, nil
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if v, err := tryParse[T](extracted); err == nil {
			return v, nil
		}
	}

	preview := trimmed
	if len(preview) > 500 {
		preview = preview[:500] + "... (truncated)"
	}
	return zero, fmt.Errorf("%s: all JSON parsing strategies failed; response: %s", context, preview)
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// extractJSON pulls the first JSON object or array out of mixed content.
// The leading-character check keeps an object nested inside an array from
// shadowing the array itself.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return arrayRegex.FindString(text)
	}
	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}
