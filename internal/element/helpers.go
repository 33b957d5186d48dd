// Package element builds document elements from JSON value descriptors
// (spec.md 4.2) and implements the style merge semantics shared by the
// patch engine's replace-on-style case.
package element

import "github.com/doxsess/docx-session-engine/internal/docxerr"

func str(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func number(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func intVal(m map[string]any, key string) (int, bool) {
	n, ok := number(m, key)
	if !ok {
		return 0, false
	}
	return int(n), true
}

func boolVal(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func sliceVal(m map[string]any, key string) ([]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

func mapVal(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	mm, ok := v.(map[string]any)
	return mm, ok
}

func requireString(m map[string]any, key string) (string, error) {
	s, ok := str(m, key)
	if !ok || s == "" {
		return "", docxerr.Newf(docxerr.PatchSemantic, "%q is required", key)
	}
	return s, nil
}
