package github

import (
	"encoding/json"
	"strconv"
	"strings"
)

// unsetSentinel is the placeholder the upstream SDK layer leaks into
// numeric fields that were never populated
const unsetSentinel = "<UNSET>"

// NormalizeInt converts a loosely-typed value from the GitHub API into an
// integer. The upstream encodes numbers inconsistently: sometimes as JSON
// numbers, sometimes as strings, sometimes as the "<UNSET>" sentinel, and
// sometimes not at all. This is the single place where that inconsistency
// is absorbed; it never panics and always returns an integer.
//
// Floats and numeric strings are truncated toward zero. Anything that
// cannot be interpreted as a number yields def.
func NormalizeInt(value any, def int) int {
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
		return def
	case string:
		if v == unsetSentinel {
			return def
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(f)
		}
		return def
	default:
		return def
	}
}
