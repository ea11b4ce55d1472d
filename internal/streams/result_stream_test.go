package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStream_PutStampsLaunchMSAndGetAllSortsByIdx(t *testing.T) {
	as := NewArgumentStream(bundles(3), NewTimer())
	rs := NewResultStream(as)

	var gets [][2]int // bundle idx, worker count

	for i := range 3 {
		b, wc, ok := as.Get("W0")
		require.True(t, ok)

		gets = append(gets, [2]int{int(b.Index()), wc})
	}

	// Put in reverse order; GetAll must restore ascending idx order.
	for i := len(gets) - 1; i >= 0; i-- {
		entry := Entry{IndexKey: int64(gets[i][0])}
		rs.Put(entry, "W0", gets[i][1])
	}

	out := rs.GetAll()
	require.Len(t, out, 3)

	for i, e := range out {
		assert.Equal(t, int64(i), e.Index())
		assert.Contains(t, e, "launch_ms")
	}

	assert.Equal(t, 0, as.InFlightCount())
}
