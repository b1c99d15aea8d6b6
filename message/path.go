package message

import (
	"strconv"
	"strings"
)

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// GetProperty resolves a dotted path such as "payload.user.name" against v.
// Numeric segments index into slices. An empty path returns v itself.
func GetProperty(v any, path string) (any, bool) {
	parts := splitPath(path)
	cur := v
	for _, p := range parts {
		switch node := cur.(type) {
		case Msg:
			next, ok := node[p]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]any:
			next, ok := node[p]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetProperty writes value at a dotted path, creating intermediate maps and
// replacing intermediate values that are not maps. An empty path is a no-op.
func SetProperty(m Msg, path string, value any) {
	parts := splitPath(path)
	if m == nil || len(parts) == 0 {
		return
	}
	var cur map[string]any = m
	for _, p := range parts[:len(parts)-1] {
		switch next := cur[p].(type) {
		case map[string]any:
			cur = next
		case Msg:
			cur = next
		default:
			created := make(map[string]any)
			cur[p] = created
			cur = created
		}
	}
	cur[parts[len(parts)-1]] = value
}

// DeleteProperty removes the value at a dotted path. Missing intermediates
// are not an error.
func DeleteProperty(m Msg, path string) {
	parts := splitPath(path)
	if m == nil || len(parts) == 0 {
		return
	}
	var cur map[string]any = m
	for _, p := range parts[:len(parts)-1] {
		switch next := cur[p].(type) {
		case map[string]any:
			cur = next
		case Msg:
			cur = next
		default:
			return
		}
	}
	delete(cur, parts[len(parts)-1])
}
