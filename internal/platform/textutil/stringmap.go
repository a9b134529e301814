// Package textutil holds small string helpers shared across services.
package textutil

import "strings"

// CompactMap trims every key and value and drops entries left with an empty
// key or value. It returns nil when nothing survives, so callers can hand the
// result straight to collaborators that treat nil as "no metadata".
func CompactMap(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
