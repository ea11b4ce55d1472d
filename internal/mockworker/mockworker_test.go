package mockworker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorkit/fedget/internal/mockworker"
	"github.com/mirrorkit/fedget/internal/streams"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorker_Idx2AlwaysSoftFails(t *testing.T) {
	schedule := mockworker.NewSchedule()
	w := mockworker.New(0, 1, schedule, discardLogger(), true)

	st := streams.New(nil)

	for i := 0; i < 3; i++ {
		err := w.UnitOfWork(context.Background(), st.Results, 1, streams.Bundle{streams.IndexKey: int64(2)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, mockworker.ErrSoftFail))
	}
}

func TestWorker_Idx4RescuedAfterFirstHitAcrossPool(t *testing.T) {
	schedule := mockworker.NewSchedule()
	w0 := mockworker.New(0, 1, schedule, discardLogger(), true)
	w1 := mockworker.New(1, 2, schedule, discardLogger(), true)

	st := streams.New(nil)

	err := w0.UnitOfWork(context.Background(), st.Results, 1, streams.Bundle{streams.IndexKey: int64(4)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mockworker.ErrSoftFail))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = w1.UnitOfWork(ctx, st.Results, 1, streams.Bundle{streams.IndexKey: int64(4)})
	assert.NoError(t, err)
}

func TestWorker_Idx6And9AlwaysHardFail(t *testing.T) {
	schedule := mockworker.NewSchedule()
	w := mockworker.New(2, 3, schedule, discardLogger(), true)

	st := streams.New(nil)

	for _, idx := range []int64{6, 9} {
		err := w.UnitOfWork(context.Background(), st.Results, 1, streams.Bundle{streams.IndexKey: idx})
		require.Error(t, err)
		assert.True(t, errors.Is(err, mockworker.ErrHardFail))
	}
}
