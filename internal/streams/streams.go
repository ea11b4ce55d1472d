package streams

// Streams bundles the three instrumented conduits a dispatch run shares:
// the prefilled argument stream, the result stream, and the failure
// stream, all stamped by one shared millisecond timer.
type Streams struct {
	Timer     *Timer
	Arguments *ArgumentStream
	Results   *ResultStream
	Failures  *FailureStream
}

// New creates a fresh set of streams prefilled from bundles.
func New(bundles []Bundle) *Streams {
	timer := NewTimer()
	args := NewArgumentStream(bundles, timer)

	return &Streams{
		Timer:     timer,
		Arguments: args,
		Results:   NewResultStream(args),
		Failures:  NewFailureStream(args),
	}
}

// Summary is the lightweight run-level tally reported alongside the
// ordered result/failure lists.
type Summary struct {
	JobsIn   int
	Finished int
	Failed   int
}

// Stats reports the jobs-in/finished/failed tally. Finished/Failed count
// whatever is still buffered, so call this before GetAll drains either
// stream.
func (s *Streams) Stats() Summary {
	return Summary{
		JobsIn:   s.Arguments.NArgs(),
		Finished: s.Results.Len(),
		Failed:   s.Failures.Len(),
	}
}
