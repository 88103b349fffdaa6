package seed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusevents/internal/campus"
	"campusevents/internal/testing/testdb"
)

func TestDemo(t *testing.T) {
	ctx := context.Background()
	st := testdb.Memory(t)
	svc := campus.NewService(st)

	seeded, err := Demo(ctx, st, nil)
	require.NoError(t, err)
	assert.True(t, seeded)

	events, err := svc.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "Hackathon 2025", events[0].Name, "ordered by date")
	assert.Equal(t, campus.EventActive, events[0].Status)

	att, err := svc.AttendancePercent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, att.AttendancePercent)

	fb, err := svc.AverageFeedback(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4.5, fb.AvgRating)

	top, err := svc.TopStudents(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	assert.Equal(t, "ABC001", top[0].Roll)
	assert.Equal(t, 3, top[0].Attended)

	t.Run("SecondRunIsNoop", func(t *testing.T) {
		seeded, err := Demo(ctx, st, nil)
		require.NoError(t, err)
		assert.False(t, seeded)

		students, err := svc.ListStudents(ctx, campus.StudentFilter{})
		require.NoError(t, err)
		assert.Len(t, students, 5)
	})
}

var errFeedback = errors.New("feedback write failed")

// feedbackFails lets every write through except feedback, the last table seeded.
type feedbackFails struct{ campus.Store }

func (s feedbackFails) WithinTx(ctx context.Context, fn func(campus.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx campus.Tx) error { return fn(feedbackTx{tx}) })
}

type feedbackTx struct{ campus.Tx }

func (feedbackTx) UpsertFeedback(context.Context, *campus.Feedback) error { return errFeedback }

func TestDemo_FailureLeavesStoreEmpty(t *testing.T) {
	ctx := context.Background()
	st := testdb.Memory(t)

	seeded, err := Demo(ctx, feedbackFails{st}, nil)
	require.ErrorIs(t, err, errFeedback)
	assert.False(t, seeded)

	colleges, err := st.ListColleges(ctx)
	require.NoError(t, err)
	assert.Empty(t, colleges, "partial seed rolled back")

	seeded, err = Demo(ctx, st, nil)
	require.NoError(t, err)
	assert.True(t, seeded, "an empty store seeds on the next start")

	ratings, err := st.ListFeedback(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ratings, 2)
}

func TestDemo_ConcurrentCallersSeedOnce(t *testing.T) {
	ctx := context.Background()
	st := testdb.Memory(t)

	var (
		wg      sync.WaitGroup
		results = make([]bool, 4)
		errs    = make([]error, 4)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Demo(ctx, st, nil)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	colleges, err := st.ListColleges(ctx)
	require.NoError(t, err)
	assert.Len(t, colleges, 2)
}
