package shared

import (
	"strconv"
	"strings"
)

// Helpers for loosely-typed JSON payloads (webhooks, LLM output).

// LookupAny is a safe nested lookup with dot paths on maps.
func LookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// LookupStr returns the trimmed string at path or "".
func LookupStr(m map[string]any, path string) string {
	if s, ok := LookupAny(m, path).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// FirstStr returns the first non-empty string among paths.
func FirstStr(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := LookupStr(m, p); s != "" && !isNullish(s) {
			return s
		}
	}
	return ""
}

// FirstStrPtr is FirstStr with nil for "absent".
func FirstStrPtr(m map[string]any, paths ...string) *string {
	if s := FirstStr(m, paths...); s != "" {
		return &s
	}
	return nil
}

// FirstFloat reads a number from several paths (float64/int/string like "4,5").
func FirstFloat(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := LookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// FirstBool accepts JSON booleans and "true"/"false" strings.
func FirstBool(m map[string]any, paths ...string) (bool, bool) {
	for _, k := range paths {
		switch v := LookupAny(m, k).(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// FirstStrings accepts []any with either strings or {name} objects.
func FirstStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		raw, ok := LookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, it := range raw {
			switch t := it.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if n, ok := t["name"].(string); ok && n != "" {
					out = append(out, n)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// LLMs like to spell out null.
func isNullish(s string) bool {
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "not mentioned", "unknown":
		return true
	}
	return false
}
