// Actors and allow blocks.

package capability

import (
	"fmt"
	"slices"
)

// Actor describes the caller. A nil Actor is an anonymous caller.
type Actor map[string]any

// ID returns the actor's "id" for logging, or "" when it has none.
func (a Actor) ID() string {
	if a == nil {
		return ""
	}
	switch v := a["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// ActorMatchesAllow reports whether actor satisfies an allow block.
//
// The block is one of:
//   - nil: everyone, including anonymous callers
//   - true or false
//   - a map of actor key to a value or list of values; the actor matches when
//     any listed value equals (or, for list valued actor keys, is contained
//     in) the actor's value for any key. The value "*" matches any actor that
//     has the key. {"unauthenticated": true} matches anonymous callers.
func ActorMatchesAllow(actor Actor, allow any) bool {
	switch a := allow.(type) {
	case nil:
		return true
	case bool:
		return a
	case map[string]any:
		if actor == nil && a["unauthenticated"] == true {
			return true
		}
		for key, want := range a {
			got, ok := actor[key]
			if !ok || got == nil {
				continue
			}
			if want == "*" {
				return true
			}
			if intersects(asList(got), asList(want)) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func intersects(a, b []any) bool {
	for _, x := range a {
		if slices.ContainsFunc(b, func(y any) bool { return scalarEqual(x, y) }) {
			return true
		}
	}
	return false
}

// scalarEqual compares values decoded from YAML or JSON, where the same
// number may arrive as int or float64.
func scalarEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	switch a.(type) {
	case string, bool:
		return a == b
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
