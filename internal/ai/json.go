package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no balanced JSON value can be found in model text.
var ErrNoJSON = errors.New("no JSON value in model response")

var fenceLine = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_-]*[ \t]*\r?$\n?")

// StripCodeFences removes markdown code-fence lines and trims the result.
func StripCodeFences(text string) string {
	return strings.TrimSpace(fenceLine.ReplaceAllString(text, ""))
}

// ExtractJSON returns the first balanced {...} or [...] substring of text after
// removing code fences. Brackets inside JSON strings are ignored.
func ExtractJSON(text string) (string, error) {
	if c := JSONCandidates(text); len(c) > 0 {
		return c[0], nil
	}
	return "", ErrNoJSON
}

// JSONCandidates returns every top-level balanced {...} or [...] substring of text
// in order of appearance, after removing code fences.
func JSONCandidates(text string) []string {
	text = StripCodeFences(text)
	var out []string
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if end, ok := balancedEnd(text, start); ok {
			out = append(out, text[start:end+1])
			start = end
		}
	}
	return out
}

// DecodeJSON extracts the first JSON value from text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

// balancedEnd returns the index of the bracket closing the one at start.
func balancedEnd(text string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
