package orchtypes

import (
	"encoding/json"
	"sort"
	"strings"
)

// CanonicalizeArgs renders a tool-argument map as a stable, deterministically
// ordered JSON string, so the same logical arguments always hash to the same
// cache key (§4.7) and the same duplicate-guard key (§4.6) regardless of Go
// map iteration order.
func CanonicalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(canonicalizeValue(args[k]))
		if err != nil {
			vb = []byte("null")
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// canonicalizeValue recursively sorts nested map keys so canonicalization is
// stable at every depth, not just the top level.
func canonicalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(val))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(val[k])
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return val
	}
}

// ToolCacheKey builds the cache key contract of §4.7: tool name, a colon, and
// the first 100 characters of the canonicalized argument JSON.
func ToolCacheKey(toolName string, args map[string]any) string {
	canon := CanonicalizeArgs(args)
	if len(canon) > 100 {
		canon = canon[:100]
	}
	return toolName + ":" + canon
}

// TruncateObservation caps an observation at n characters, appending an
// explicit ellipsis marker when truncation occurred (§4.6 edge case). The
// caller is responsible for keeping the untruncated value in the result
// cache; this only shapes what is forwarded into the next reasoning step.
func TruncateObservation(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	return s[:n] + "... [truncated, full result cached]", true
}
