package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validator checks a decoded value before it is handed back to the caller.
type Validator[T any] func(T) error

// Decode pulls the first JSON object or array out of raw model output and
// decodes it into T. Markdown fences, surrounding prose, // comments and
// trailing commas are tolerated.
func Decode[T any](raw string, validate Validator[T]) (T, error) {
	var zero T
	block := firstJSONBlock(dropFences(raw))
	if block == "" {
		return zero, fmt.Errorf("%w: no JSON found", ErrInvalidOutput)
	}
	block = cleanJSON(block)

	var out T
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if validate != nil {
		if err := validate(out); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
	}
	return out, nil
}

func dropFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// firstJSONBlock returns the first balanced {...} or [...] in s.
func firstJSONBlock(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// cleanJSON removes line comments and trailing commas outside string literals.
func cleanJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i+1 < len(s) && s[i+1] != '\n' {
				i++
			}
			continue
		case c == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
