package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bundles(n int) []Bundle {
	out := make([]Bundle, n)
	for i := range n {
		out[i] = Bundle{IndexKey: int64(i)}
	}

	return out
}

func TestArgumentStream_MonotoneWorkerCount(t *testing.T) {
	as := NewArgumentStream(bundles(5), NewTimer())

	for want := 1; want <= 5; want++ {
		_, wc, ok := as.Get("W0")
		require.True(t, ok)
		assert.Equal(t, want, wc)
	}

	_, _, ok := as.Get("W0")
	assert.False(t, ok, "stream is drained and nothing is in flight")
}

func TestArgumentStream_PutRequeuesAndClearsInFlight(t *testing.T) {
	as := NewArgumentStream(bundles(1), NewTimer())

	b, wc, ok := as.Get("W0")
	require.True(t, ok)
	assert.Equal(t, 1, as.InFlightCount())

	as.Put(b, "W0", wc)
	assert.Equal(t, 0, as.InFlightCount())

	_, wc2, ok := as.Get("W1")
	require.True(t, ok)
	assert.Equal(t, 1, wc2, "worker counts are per-worker")
}

func TestArgumentStream_BlocksUntilRequeueThenDrains(t *testing.T) {
	as := NewArgumentStream(bundles(1), NewTimer())

	b, wc, ok := as.Get("W0")
	require.True(t, ok)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _, ok := as.Get("W1")
		assert.True(t, ok, "W1 should receive the requeued bundle")
	}()

	as.Put(b, "W0", wc)
	<-done
}

func TestArgumentStream_EmptyAndDoneWhenNothingInFlight(t *testing.T) {
	as := NewArgumentStream(nil, NewTimer())

	_, _, ok := as.Get("W0")
	assert.False(t, ok)
}
