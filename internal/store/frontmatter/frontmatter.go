// Package frontmatter parses and serializes the YAML-ish frontmatter block
// that precedes every memory item's markdown body.
package frontmatter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Document is a parsed frontmatter block plus the markdown body that
// follows it.
type Document struct {
	Fields map[string]any
	Body   string
}

// Parse splits raw file content into frontmatter fields and body. It is
// tolerant of missing fields (callers apply their own defaults) but
// returns an error for malformed fences, which callers treat as "skip this
// file" rather than crash the scan.
func Parse(raw []byte) (*Document, error) {
	text := string(raw)
	if !strings.HasPrefix(text, fence) {
		return nil, fmt.Errorf("frontmatter: missing opening fence")
	}
	rest := text[len(fence):]

	end := strings.Index(rest, "\n"+fence)
	if end == -1 {
		return nil, fmt.Errorf("frontmatter: missing closing fence")
	}
	header := rest[:end]
	// Drop the closing fence's line break and the blank line Serialize
	// writes between the fence and the body.
	body := strings.TrimPrefix(rest[end+1+len(fence):], "\n")
	body = strings.TrimPrefix(body, "\n")

	fields := map[string]any{}
	if strings.TrimSpace(header) != "" {
		if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
			return nil, fmt.Errorf("frontmatter: invalid header: %w", err)
		}
	}
	return &Document{Fields: fields, Body: body}, nil
}

// Serialize writes fields (in sorted key order, for deterministic
// round-trips) as a YAML-ish header between "---" fences, followed by
// body. String-slice values are rendered in flow style ("[ \"a\", \"b\" ]")
// per the on-disk format.
func Serialize(fields map[string]any, body string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.WriteByte('\n')
	for _, k := range keys {
		v := fields[k]
		if v == nil {
			continue
		}
		buf.WriteString(k)
		buf.WriteString(": ")
		writeValue(&buf, v)
		buf.WriteByte('\n')
	}
	buf.WriteString(fence)
	buf.WriteByte('\n')
	if body != "" {
		buf.WriteByte('\n')
		buf.WriteString(body)
	}
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case []string:
		buf.WriteString("[ ")
		for i, s := range val {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(quote(s))
		}
		buf.WriteString(" ]")
	case string:
		buf.WriteString(quote(val))
	default:
		enc, _ := yaml.Marshal(v)
		buf.WriteString(strings.TrimSpace(string(enc)))
	}
}

func quote(s string) string {
	enc, err := yaml.Marshal(s)
	if err != nil {
		return `"" `
	}
	return strings.TrimSpace(string(enc))
}

// StringSlice coerces a decoded frontmatter value (a []any from YAML
// flow-sequence parsing, or nil) into a []string, defaulting to empty.
func StringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// String coerces a decoded value into a string, defaulting to "".
func String(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Float64 coerces a decoded numeric value into a float64.
func Float64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Bool coerces a decoded value into a bool.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}
