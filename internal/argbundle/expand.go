// Package argbundle turns a mapping of "one list per varying parameter
// plus scalar defaults" into an ordered sequence of indexed per-request
// argument bundles, the shape the dispatcher's argument stream consumes.
package argbundle

import "github.com/mirrorkit/fedget/internal/streams"

// listValue is implemented by the slice types callers may supply for a
// varying parameter. Strings deliberately do not implement it — a string
// is a scalar default, not something to zip element-by-element.
type listValue interface {
	len() int
	at(i int) any
}

type intList []int64

func (l intList) len() int      { return len(l) }
func (l intList) at(i int) any  { return l[i] }

type floatList []float64

func (l floatList) len() int     { return len(l) }
func (l floatList) at(i int) any { return l[i] }

type stringList []string

func (l stringList) len() int     { return len(l) }
func (l stringList) at(i int) any { return l[i] }

type anyList []any

func (l anyList) len() int     { return len(l) }
func (l anyList) at(i int) any { return l[i] }

// asListValue adapts a caller-supplied slice to listValue. Strings and
// everything else are treated as scalars, matching the original's
// NonStringIterable test.
func asListValue(v any) (listValue, bool) {
	switch t := v.(type) {
	case []int64:
		return intList(t), true
	case []int:
		out := make(intList, len(t))
		for i, x := range t {
			out[i] = int64(x)
		}

		return out, true
	case []float64:
		return floatList(t), true
	case []string:
		return stringList(t), true
	case []any:
		return anyList(t), true
	default:
		return nil, false
	}
}

// Expand zips the longest of arg's non-string-iterable values, padding
// shorter lists with nil from the point they run out, and emits one
// bundle per zipped position carrying idx plus every key (list element or
// scalar value).
func Expand(arg map[string]any) []streams.Bundle {
	type listKey struct {
		key  string
		list listValue
	}

	var lists []listKey

	scalars := make(map[string]any)

	for k, v := range arg {
		if lv, ok := asListValue(v); ok {
			lists = append(lists, listKey{key: k, list: lv})
		} else {
			scalars[k] = v
		}
	}

	maxLen := 0
	for _, lk := range lists {
		if n := lk.list.len(); n > maxLen {
			maxLen = n
		}
	}

	out := make([]streams.Bundle, 0, maxLen)

	for i := range maxLen {
		b := streams.Bundle{streams.IndexKey: int64(i)}

		for k, v := range scalars {
			b[k] = v
		}

		for _, lk := range lists {
			if i < lk.list.len() {
				b[lk.key] = lk.list.at(i)
			} else {
				b[lk.key] = nil
			}
		}

		out = append(out, b)
	}

	return out
}
