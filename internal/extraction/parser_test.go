package extraction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoItems = `[{"title": "Review Q4 report", "confidence": 0.95}, {"title": "Update budget", "assignee": "John"}]`

func titles(t *testing.T, items []CandidateItem) []string {
	t.Helper()
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == nil {
			out = append(out, "<nil>")
			continue
		}
		s, _ := it["title"].(string)
		out = append(out, s)
	}
	return out
}

func TestParseResponse_Accepted(t *testing.T) {
	want := []string{"Review Q4 report", "Update budget"}

	tests := []struct {
		name string
		raw  string
	}{
		{"bare array", twoItems},
		{"code fence", "```json\n" + twoItems + "\n```"},
		{"fence without language", "```\n" + twoItems + "\n```"},
		{"surrounding prose", "Sure! Here are the action items I found:\n\n" + twoItems + "\n\nLet me know if you need more."},
		{"wrapper object", `{"action_items": ` + twoItems + `}`},
		{"wrapper with prose and fence", "Result:\n```json\n{\"tasks\": " + twoItems + "}\n```"},
		{"prose brackets before payload", "Items [see below]:\n" + twoItems},
		{"brackets inside strings", `[{"title": "Review Q4 report", "context": "ends with ] and }"}, {"title": "Update budget"}]`},
		{"unclosed bracket in prose", "I found 2 tasks [see below:\n```json\n" + twoItems + "\n```"},
		{"payload nested in prose brackets", "[Note: " + twoItems + "]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseResponse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, titles(t, items))
		})
	}
}

func TestParseResponse_SingleObject(t *testing.T) {
	items, err := ParseResponse(`Here you go: {"title": "Book room", "priority": "low"}`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Book room", items[0]["title"])
}

func TestParseResponse_EmptyArray(t *testing.T) {
	items, err := ParseResponse(`{"action_items": []}`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseResponse_MixedElements(t *testing.T) {
	items, err := ParseResponse(`["Call vendor", 42, {"title": "Sign contract"}, null]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Call vendor", "<nil>", "Sign contract", "<nil>"}, titles(t, items))
}

func TestParseResponse_PreservesNumbers(t *testing.T) {
	items, err := ParseResponse(`[{"title": "x", "confidence": 0.95}]`)
	require.NoError(t, err)
	assert.Equal(t, 0.95, normalizeConfidence(items[0]["confidence"]))
}

func TestParseResponse_NestedInFailedCandidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"object inside annotation", `[Note: {"title": "Review Q4 report"}]`, []string{"Review Q4 report"}},
		{"truncated reply keeps complete object", `[{"title": "Review Q4 report"}, {"title": "Upd`, []string{"Review Q4 report"}},
		{"invalid wrapper around valid array", `{tasks: ` + twoItems + `}`, []string{"Review Q4 report", "Update budget"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseResponse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(t, items))
		})
	}
}

func TestParseResponse_WrapperKeyOrder(t *testing.T) {
	raw := `{"tasks": [{"title": "from tasks"}], "items": [{"title": "from items"}], "action_items": [{"title": "from action_items"}]}`
	for i := 0; i < 20; i++ {
		items, err := ParseResponse(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"from action_items"}, titles(t, items))
	}

	items, err := ParseResponse(`{"tasks": [{"title": "from tasks"}], "items": [{"title": "from items"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"from items"}, titles(t, items))
}

func TestParseResponse_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "I could not find any action items in this email."},
		{"empty", ""},
		{"truncated object", `{"title": "Review Q4 report", "assignee": "Jo`},
		{"only stray brackets", "Nothing here [really] {honestly}"},
		{"unclosed bracket only", "Tasks: [ none found"},
		{"mismatched brackets", `[{"title": "x"]}`},
		{"scalar array", `[1, 2, 3]`},
		{"invalid json", `{title: 'x'}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseResponse(tt.raw)
			require.Error(t, err)
			assert.Nil(t, items)

			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
		})
	}
}
