package extraction

import (
	"strings"

	json "github.com/goccy/go-json"
)

// wrapperKeys are object keys whose array value holds the items.
var wrapperKeys = []string{"action_items", "actionitems", "items", "tasks"}

// ParseResponse locates the JSON payload in a model reply and returns its
// candidate items. Surrounding prose and code fences are ignored. A single
// object is treated as a one-element list, and a wrapper object such as
// {"action_items": [...]} is unwrapped.
//
// Candidates are found with a balanced-bracket scan that honours JSON string
// literals. When a candidate is unbalanced or does not decode, scanning
// resumes at the next opening bracket after its start, so a payload nested
// in or following stray brackets is still found. A reply with no decodable
// candidate yields a *ParseError.
func ParseResponse(raw string) ([]CandidateItem, error) {
	var lastErr error
	unbalanced := false
	pos := 0
	for {
		start := nextOpenBracket(raw, pos)
		if start < 0 {
			break
		}
		pos = start + 1

		end, ok := matchBracket(raw, start)
		if !ok {
			unbalanced = true
			continue
		}
		items, err := decodeCandidates(raw[start : end+1])
		if err == nil {
			return items, nil
		}
		lastErr = err
	}

	switch {
	case lastErr != nil:
		return nil, &ParseError{Reason: "no decodable JSON", Err: lastErr}
	case unbalanced:
		return nil, &ParseError{Reason: "unbalanced brackets"}
	}
	return nil, &ParseError{Reason: "no JSON found"}
}

func nextOpenBracket(s string, from int) int {
	if from >= len(s) {
		return -1
	}
	i := strings.IndexAny(s[from:], "[{")
	if i < 0 {
		return -1
	}
	return from + i
}

// matchBracket returns the index of the bracket closing the one at start.
func matchBracket(s string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return i, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return len(s) - 1, false
}

func decodeCandidates(fragment string) ([]CandidateItem, error) {
	dec := json.NewDecoder(strings.NewReader(fragment))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	switch t := v.(type) {
	case []any:
		return candidatesFromArray(t)
	case map[string]any:
		if inner, ok := unwrap(t); ok {
			return candidatesFromArray(inner)
		}
		return []CandidateItem{CandidateItem(t)}, nil
	default:
		return nil, &ParseError{Reason: "payload is not an array or object"}
	}
}

// unwrap returns the array under the first wrapper key present, checking
// keys in wrapperKeys order.
func unwrap(obj map[string]any) ([]any, bool) {
	for _, w := range wrapperKeys {
		if arr, ok := obj[w].([]any); ok {
			return arr, true
		}
		for k, v := range obj {
			if strings.ToLower(k) != w {
				continue
			}
			if arr, ok := v.([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// candidatesFromArray keeps objects, promotes bare strings to titles and
// carries anything else as a nil candidate so the normalizer counts it.
// A non-empty array with no usable element is not a payload.
func candidatesFromArray(arr []any) ([]CandidateItem, error) {
	items := make([]CandidateItem, 0, len(arr))
	usable := 0
	for _, el := range arr {
		switch t := el.(type) {
		case map[string]any:
			items = append(items, CandidateItem(t))
			usable++
		case string:
			items = append(items, CandidateItem{"title": t})
			usable++
		default:
			items = append(items, nil)
		}
	}
	if len(arr) > 0 && usable == 0 {
		return nil, &ParseError{Reason: "array holds no items"}
	}
	return items, nil
}
