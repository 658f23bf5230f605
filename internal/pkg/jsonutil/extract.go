// Package jsonutil pulls JSON payloads out of free-form model output.
package jsonutil

import (
	"strings"

	"github.com/tidwall/gjson"
)

const codeFence = "```"

// ExtractJSON returns the first valid JSON object or array found in raw.
// A fenced block wins over bare JSON elsewhere in the text.
func ExtractJSON(raw string) (string, bool) {
	out, _, ok := ExtractJSONWithOffset(raw)
	return out, ok
}

// ExtractJSONWithOffset also reports the byte offset of the payload in raw.
func ExtractJSONWithOffset(raw string) (string, int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", -1, false
	}
	base := strings.Index(raw, trimmed)
	if gjson.Valid(trimmed) && (trimmed[0] == '{' || trimmed[0] == '[') {
		return trimmed, base, true
	}
	if block, offset, ok := fromFence(trimmed); ok {
		return block, base + offset, true
	}
	if block, offset, ok := balanced(trimmed); ok {
		return block, base + offset, true
	}
	return "", -1, false
}

func fromFence(raw string) (string, int, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", -1, false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", -1, false
	}
	block := rest[:end]
	offset := start + len(codeFence)
	// drop a language tag such as ```json
	if idx := strings.IndexByte(block, '\n'); idx != -1 {
		if first := strings.TrimSpace(block[:idx]); !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
			offset += idx + 1
		}
	}
	out, rel, ok := balanced(block)
	if !ok {
		return "", -1, false
	}
	return out, offset + rel, true
}

// balanced scans from the first opening bracket to its matching close and
// keeps the candidate only when gjson accepts it.
func balanced(raw string) (string, int, bool) {
	for from := 0; from < len(raw); {
		rel := strings.IndexAny(raw[from:], "[{")
		if rel == -1 {
			return "", -1, false
		}
		start := from + rel
		if end, ok := matchClose(raw, start); ok {
			cand := raw[start : end+1]
			if gjson.Valid(cand) {
				return cand, start, true
			}
		}
		from = start + 1
	}
	return "", -1, false
}

func matchClose(raw string, start int) (int, bool) {
	depth := 0
	inString, escape := false, false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}
