package mapping

import "strings"

// GetPath resolves a dot-notation path against a nested payload. It returns
// the value and true when every segment resolves; an absent segment yields
// (nil, false), never an error. The payload is not mutated.
func GetPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	current := any(data)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath assigns a value at a dot-notation path, creating intermediate maps
// as needed. Existing non-map intermediate values are replaced; the final
// segment always wins.
func SetPath(data map[string]any, path string, value any) {
	if path == "" {
		return
	}
	segments := strings.Split(path, ".")
	current := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}
