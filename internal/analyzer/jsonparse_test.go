package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirect(t *testing.T) {
	got, err := parseResponse[[]findingPayload](`[{"severity":"high","category":"bug","description":"x"}]`, "test")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Severity)
}

func TestParseCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n[{\"severity\":\"low\",\"category\":\"c\",\"description\":\"d\"}]\n```"},
		{"bare fence", "```\n[{\"severity\":\"low\",\"category\":\"c\",\"description\":\"d\"}]\n```"},
		{"fence without newlines", "```json[{\"severity\":\"low\",\"category\":\"c\",\"description\":\"d\"}]```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse[[]findingPayload](tt.input, "test")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "low", got[0].Severity)
		})
	}
}

func TestParseTrailingComma(t *testing.T) {
	got, err := parseResponse[[]findingPayload](`[{"severity":"medium","category":"c","description":"d",}]`, "test")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestParseMixedContent(t *testing.T) {
	input := `Here are the findings I identified:

[{"severity":"critical","category":"security","description":"injection"}]

Let me know if you need more detail.`

	got, err := parseResponse[[]findingPayload](input, "test")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "critical", got[0].Severity)
}

func TestParseEmptyArray(t *testing.T) {
	got, err := parseResponse[[]findingPayload]("[]", "test")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseFailures(t *testing.T) {
	_, err := parseResponse[[]findingPayload]("", "test")
	assert.Error(t, err)

	_, err = parseResponse[[]findingPayload]("I could not analyze this file.", "test")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "test")
}

func TestExtractJSONPrefersArrayWhenLeading(t *testing.T) {
	// An object nested in an array must not shadow the array itself.
	input := `[{"id": 1}, {"id": 2}]`
	assert.Equal(t, input, extractJSON(input))
}
