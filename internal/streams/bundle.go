package streams

// IndexKey is the mandatory key every argument bundle, result entry, and
// failure entry carries: the request's identity across streams, the retry
// counter, and stats.
const IndexKey = "idx"

// Bundle is an ordered mapping of argument names to values. Recognized
// value types are int64, float64, string, and nil; the index key is
// mandatory and is always an int64.
type Bundle map[string]any

// Index returns the bundle's idx field.
func (b Bundle) Index() int64 {
	v, _ := b[IndexKey].(int64)

	return v
}

// Clone returns a shallow copy, so a caller can modify the copy without
// aliasing the original map. The argument stream does not clone: a
// re-queued bundle is the same map the worker received.
func (b Bundle) Clone() Bundle {
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}

	return out
}

// Entry is a result or failure record: the bundle's idx plus worker name
// plus whatever the worker or stream appended (bytes, launch_ms, error,
// message, extras, ...).
type Entry map[string]any

// Index returns the entry's idx field.
func (e Entry) Index() int64 {
	v, _ := e[IndexKey].(int64)

	return v
}
