package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// normalize converts v into JSON-native types so every backend compares and
// stores the same shapes.
func normalize(v Doc) (Doc, error) {
	if v == nil {
		return Doc{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return decode(b)
}

func decode(b []byte) (Doc, error) {
	var out Doc
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = Doc{}
	}
	return out, nil
}

// Merge deep-merges src into dst and returns dst. Nested objects merge
// recursively; any other value in src replaces the one in dst.
func Merge(dst, src Doc) Doc {
	if dst == nil {
		dst = Doc{}
	}
	for k, sv := range src {
		sm, sIsMap := sv.(map[string]any)
		dm, dIsMap := dst[k].(map[string]any)
		if sIsMap && dIsMap {
			dst[k] = Merge(dm, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

// Lookup resolves a dotted field path such as "profile.username".
func Lookup(doc Doc, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// valuesEqual compares two values by their JSON encoding.
func valuesEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// matches reports whether doc's field equals want.
func matches(doc Doc, field string, want any) bool {
	got, ok := Lookup(doc, field)
	if !ok {
		return false
	}
	return valuesEqual(got, want)
}

// pathParts splits a dotted field path, rejecting empty segments.
func pathParts(field string) ([]string, error) {
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", field)
		}
	}
	return parts, nil
}
