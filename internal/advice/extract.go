package advice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse turns raw model output into a validated Result. Extraction is
// tolerant of surrounding prose and markdown fencing; validation is strict
// and never invents missing fields.
func Parse(raw string) (*Result, error) {
	payload, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	var r Result
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode advice payload: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("advice payload invalid: %w", err)
	}
	return &r, nil
}

// extractObject finds the embedded JSON object in possibly noisy text. It
// strips code fences first; if the remainder still is not a bare object, it
// scans for the first balanced {...} span.
func extractObject(raw string) (string, error) {
	s := StripCodeFences(raw)
	if s == "" {
		return "", fmt.Errorf("empty response")
	}
	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return s, nil
	}
	if span := firstBalancedObject(s); span != "" && json.Valid([]byte(span)) {
		return span, nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// StripCodeFences removes a surrounding markdown code fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstBalancedObject returns the first top-level {...} span, honoring
// strings and escapes so braces inside values do not end the scan early.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
