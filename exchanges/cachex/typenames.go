package cachex

import (
	"encoding/json"
	"sort"
)

// collectTypenames walks a response payload and gathers every distinct
// "__typename" value. The walk is structural: objects and arrays are
// descended into, scalars are ignored.
func collectTypenames(data json.RawMessage) []string {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	walkTypenames(decoded, seen)
	if len(seen) == 0 {
		return nil
	}

	out := make([]string, 0, len(seen))
	for tn := range seen {
		out = append(out, tn)
	}
	sort.Strings(out)
	return out
}

func walkTypenames(node any, seen map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		if tn, ok := v["__typename"].(string); ok && tn != "" {
			seen[tn] = struct{}{}
		}
		for _, child := range v {
			walkTypenames(child, seen)
		}
	case []any:
		for _, child := range v {
			walkTypenames(child, seen)
		}
	}
}
