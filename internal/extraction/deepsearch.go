package extraction

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/diligence-engine/internal/types"
)

// deepSearch scans the tree depth-first for keys whose normalized name
// fuzzily contains the metric name (or vice versa). A matching object with a
// nested "value" field yields that sub-field. Candidates are still subject to
// the metric spec's validator. Object keys are visited in sorted order so results are
// deterministic.
func (e *Extractor) deepSearch(root *types.Value, metricID string, spec Spec) (*types.Value, string) {
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	target := normalizeKey(metricID)
	return e.searchNode(root, target, spec, "", maxDepth)
}

func (e *Extractor) searchNode(v *types.Value, target string, spec Spec, at string, depth int) (*types.Value, string) {
	if depth <= 0 || v == nil {
		return nil, ""
	}

	switch v.Kind {
	case types.KindObject:
		keys := make([]string, 0, len(v.Obj))
		for key := range v.Obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		// Match keys at this level before recursing.
		for _, key := range keys {
			if !keysMatch(normalizeKey(key), target) {
				continue
			}
			candidate := v.Obj[key]
			path := joinPath(at, key)
			// Prefer a nested "value" sub-field on structured metrics.
			if inner := candidate.Field("value"); !inner.IsNull() {
				if e.acceptable(inner, spec) {
					return inner, path + ".value"
				}
			}
			if e.acceptable(candidate, spec) {
				return candidate, path
			}
		}

		for _, key := range keys {
			if found, path := e.searchNode(v.Obj[key], target, spec, joinPath(at, key), depth-1); found != nil {
				return found, path
			}
		}
	case types.KindArray:
		for i, item := range v.Arr {
			path := joinPath(at, "") + indexSuffix(i)
			if found, foundAt := e.searchNode(item, target, spec, path, depth-1); found != nil {
				return found, foundAt
			}
		}
	}
	return nil, ""
}

func (e *Extractor) acceptable(v *types.Value, spec Spec) bool {
	if v.IsNull() {
		return false
	}
	candidate := v
	if spec.Transform != nil {
		candidate = spec.Transform(v)
	}
	if spec.Validate != nil {
		return spec.Validate(candidate)
	}
	// Without a validator, only accept leaf values.
	return candidate.Kind != types.KindObject && candidate.Kind != types.KindArray
}

// keysMatch reports whether two normalized keys fuzzily overlap.
func keysMatch(key, target string) bool {
	if key == "" || target == "" {
		return false
	}
	return strings.Contains(key, target) || strings.Contains(target, key)
}

// normalizeKey lowercases and strips separators so "capexPerKW",
// "capex_per_kw" and "Capex Per kW" all compare equal.
func normalizeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		}
	}
	return sb.String()
}

func joinPath(at, key string) string {
	if at == "" {
		return key
	}
	if key == "" {
		return at
	}
	return at + "." + key
}

func indexSuffix(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
