package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_TwoWorkerAggregation(t *testing.T) {
	r := NewRegistry([]string{"worker0", "worker1"}, 0)

	r.UpdateStats(map[string]float64{
		RetirementT: 800.1,
		LaunchT:     0.1,
		Bytes:       2 * 1024 * 1024,
	}, "worker0")

	r.UpdateStats(map[string]float64{
		RetirementT: 988.2,
		LaunchT:     100.2,
		Bytes:       1.5 * 1024 * 1024,
	}, "worker1")

	w0Rate := r.Value(DLRate, "worker0")
	require.NotNil(t, w0Rate)
	assert.InDelta(t, 2.5, *w0Rate, 0.05)

	w1Rate := r.Value(DLRate, "worker1")
	require.NotNil(t, w1Rate)
	assert.InDelta(t, 1.7, *w1Rate, 0.05)

	allMax := r.Stat(DLRate).Atom(All).Max
	require.NotNil(t, allMax)
	assert.InDelta(t, 2.5, *allMax, 0.05)

	allBytesSum := r.Sum(Bytes, All)
	assert.InDelta(t, 3.5*1024*1024, allBytesSum, 1.0)
}

func TestRegistry_NoopUpdateIsIdempotent(t *testing.T) {
	r := NewRegistry([]string{"w"}, 0)

	r.UpdateStats(map[string]float64{Bytes: 1024, RetirementT: 10, LaunchT: 1}, "w")
	before := *r.Value(DLRate, "w")

	r.UpdateStats(map[string]float64{}, "w")
	after := *r.Value(DLRate, "w")

	assert.InDelta(t, before, after, 1e-9)
}

func TestRegistry_MissingOperandSkipsDerivation(t *testing.T) {
	r := NewRegistry([]string{"w"}, 0)

	// bytes with no retirement/launch yet: service_t, dl_rate, cum_rate all
	// stay unset rather than panicking.
	r.UpdateStats(map[string]float64{Bytes: 1024}, "w")

	assert.Nil(t, r.Value(ServiceT, "w"))
	assert.Nil(t, r.Value(DLRate, "w"))
}
