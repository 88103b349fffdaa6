package campus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campusevents/internal/campus"
	"campusevents/internal/memstore"
	"campusevents/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 9, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc     *campus.Service
	store   *memstore.Store
	college int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := testdb.Memory(t)
	svc := campus.NewService(store, campus.WithClock(func() time.Time { return fixedNow }))
	collegeID, err := svc.CreateCollege(context.Background(), "ABC College", "ABC")
	require.NoError(t, err)
	return fixture{svc: svc, store: store, college: collegeID}
}

func (f fixture) event(t *testing.T, capacity *int) int64 {
	t.Helper()
	id, err := f.svc.CreateEvent(context.Background(), campus.EventInput{
		CollegeID: f.college,
		Name:      "Hackathon",
		Type:      "Hackathon",
		Date:      "2025-09-10",
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return id
}

func (f fixture) register(t *testing.T, eventID int64, roll string) campus.RegisterResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), campus.RegisterInput{EventID: eventID, Name: "Student " + roll, Roll: roll})
	require.NoError(t, err)
	return res
}

func intPtr(v int) *int { return &v }

func idPtr(v int64) *int64 { return &v }

func assertKind(t *testing.T, err error, kind campus.Kind, message string) {
	t.Helper()
	require.Error(t, err)
	got, ok := campus.KindOf(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, kind, got)
	assert.Equal(t, message, err.Error())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("CapacityOne_SecondStudentRejected", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, intPtr(1))

		f.register(t, eventID, "A001")

		_, err := f.svc.Register(ctx, campus.RegisterInput{EventID: eventID, Name: "B", Roll: "B001"})
		assertKind(t, err, campus.KindCapacityExceeded, "event full")
		assert.True(t, errors.Is(err, campus.ErrCapacityExceeded))
	})

	t.Run("DuplicatePair_Conflict", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		first := f.register(t, eventID, "A001")

		_, err := f.svc.Register(ctx, campus.RegisterInput{EventID: eventID, StudentID: &first.StudentID})
		assertKind(t, err, campus.KindConflict, "already registered")

		_, err = f.svc.Register(ctx, campus.RegisterInput{EventID: eventID, Name: "Again", Roll: "A001"})
		assertKind(t, err, campus.KindConflict, "already registered")
	})

	t.Run("ImplicitStudent_UsesEventCollege", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)

		res := f.register(t, eventID, "NEW01")

		students, err := f.svc.ListStudents(ctx, campus.StudentFilter{Roll: "NEW01"})
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, res.StudentID, students[0].ID)
		assert.Equal(t, f.college, students[0].CollegeID)
		assert.Equal(t, "Student NEW01", students[0].Name)
		assert.Nil(t, students[0].Email)
	})

	t.Run("ImplicitStudent_ReusesExistingRoll", func(t *testing.T) {
		f := newFixture(t)
		email := "tanvi@example.com"
		studentID, err := f.svc.CreateStudent(ctx, campus.StudentInput{CollegeID: f.college, Roll: "ABC001", Name: "Tanvi B", Email: &email})
		require.NoError(t, err)
		eventID := f.event(t, nil)

		res, err := f.svc.Register(ctx, campus.RegisterInput{EventID: eventID, Name: "Other Name", Roll: "ABC001"})
		require.NoError(t, err)
		assert.Equal(t, studentID, res.StudentID)

		students, err := f.svc.ListStudents(ctx, campus.StudentFilter{})
		require.NoError(t, err)
		assert.Len(t, students, 1)
	})

	t.Run("PersistsRegistration", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		f.register(t, eventID, "A001")

		var reg bool
		err := f.store.WithinTx(ctx, func(tx campus.Tx) error {
			var err error
			reg, err = tx.HasRegistration(ctx, 1, eventID)
			return err
		})
		require.NoError(t, err)
		assert.True(t, reg)
	})

	t.Run("Errors", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		cancelledID := f.event(t, nil)
		require.NoError(t, f.svc.CancelEvent(ctx, cancelledID))

		tests := []struct {
			name    string
			in      campus.RegisterInput
			kind    campus.Kind
			message string
		}{
			{"MissingEvent", campus.RegisterInput{Name: "A", Roll: "1"}, campus.KindValidation, "event_id required"},
			{"UnknownEvent", campus.RegisterInput{EventID: 999, Name: "A", Roll: "1"}, campus.KindNotFound, "event not found"},
			{"CancelledEvent", campus.RegisterInput{EventID: cancelledID, Name: "A", Roll: "1"}, campus.KindInvalidState, "event is cancelled"},
			{"UnknownStudent", campus.RegisterInput{EventID: eventID, StudentID: idPtr(42)}, campus.KindNotFound, "student not found"},
			{"NegativeStudentIDIsNotIgnored", campus.RegisterInput{EventID: eventID, StudentID: idPtr(-5), Name: "A", Roll: "1"}, campus.KindNotFound, "student not found"},
			{"ZeroStudentIDIsNotIgnored", campus.RegisterInput{EventID: eventID, StudentID: idPtr(0), Name: "A", Roll: "1"}, campus.KindNotFound, "student not found"},
			{"MissingRoll", campus.RegisterInput{EventID: eventID, Name: "A"}, campus.KindValidation, "name and roll required to create student"},
			{"BlankName", campus.RegisterInput{EventID: eventID, Name: "  ", Roll: "1"}, campus.KindValidation, "name and roll required to create student"},
			{"UnknownCollege", campus.RegisterInput{EventID: eventID, Name: "A", Roll: "1", CollegeID: 77}, campus.KindNotFound, "college not found"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Register(ctx, tt.in)
				assertKind(t, err, tt.kind, tt.message)
			})
		}

		students, err := f.svc.ListStudents(ctx, campus.StudentFilter{})
		require.NoError(t, err)
		assert.Empty(t, students, "failed registrations must not leave students behind")
	})
}

func TestRegister_ConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t)
	const capacity = 5
	eventID := f.event(t, intPtr(capacity))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		full     int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), campus.RegisterInput{
				EventID: eventID,
				Name:    fmt.Sprintf("Student %d", i),
				Roll:    fmt.Sprintf("R%03d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, campus.ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)
	assert.Equal(t, 40-capacity, full)

	report, err := f.svc.AttendancePercent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, capacity, report.TotalRegistered)
}

func TestMarkAttendance(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert_LastWriteWins", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		reg := f.register(t, eventID, "A001")

		require.NoError(t, f.svc.MarkAttendance(ctx, campus.AttendanceInput{StudentID: reg.StudentID, EventID: eventID, Status: campus.Present}))
		require.NoError(t, f.svc.MarkAttendance(ctx, campus.AttendanceInput{StudentID: reg.StudentID, EventID: eventID, Status: campus.Absent}))

		rows, err := f.svc.ListEventAttendance(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, campus.Absent, rows[0].Status)
		assert.Equal(t, "2025-09-10T09:30:00Z", rows[0].MarkedOn)
	})

	t.Run("Errors", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		reg := f.register(t, eventID, "A001")
		other := f.event(t, nil)
		cancelled := f.event(t, nil)
		f.register(t, cancelled, "A002")
		require.NoError(t, f.svc.CancelEvent(ctx, cancelled))

		tests := []struct {
			name    string
			in      campus.AttendanceInput
			kind    campus.Kind
			message string
		}{
			{"MissingStatus", campus.AttendanceInput{StudentID: reg.StudentID, EventID: eventID}, campus.KindValidation, "student_id, event_id, status required"},
			{"MissingStudent", campus.AttendanceInput{EventID: eventID, Status: "present"}, campus.KindValidation, "student_id, event_id, status required"},
			{"BadStatus", campus.AttendanceInput{StudentID: reg.StudentID, EventID: eventID, Status: "late"}, campus.KindValidation, "status must be 'present' or 'absent'"},
			{"UnknownEvent", campus.AttendanceInput{StudentID: reg.StudentID, EventID: 999, Status: "present"}, campus.KindNotFound, "event not found"},
			{"CancelledEvent", campus.AttendanceInput{StudentID: 2, EventID: cancelled, Status: "present"}, campus.KindInvalidState, "event is cancelled"},
			{"NotRegistered", campus.AttendanceInput{StudentID: reg.StudentID, EventID: other, Status: "present"}, campus.KindValidation, "student not registered for event"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.svc.MarkAttendance(ctx, tt.in)
				assertKind(t, err, tt.kind, tt.message)
			})
		}
	})
}

func TestSubmitFeedback(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert_Overwrites", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		reg := f.register(t, eventID, "A001")

		require.NoError(t, f.svc.SubmitFeedback(ctx, campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID, Rating: 2, Comment: "meh"}))
		require.NoError(t, f.svc.SubmitFeedback(ctx, campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID, Rating: 5, Comment: "Great!"}))

		rows, err := f.svc.ListEventFeedback(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 5, rows[0].Rating)
		assert.Equal(t, "Great!", rows[0].Comment)
	})

	t.Run("AllowedAfterCancellation", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		reg := f.register(t, eventID, "A001")
		require.NoError(t, f.svc.CancelEvent(ctx, eventID))

		_, err := f.svc.Register(ctx, campus.RegisterInput{EventID: eventID, Name: "B", Roll: "B001"})
		assertKind(t, err, campus.KindInvalidState, "event is cancelled")

		err = f.svc.SubmitFeedback(ctx, campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID, Rating: 4})
		require.NoError(t, err)
	})

	t.Run("Errors", func(t *testing.T) {
		f := newFixture(t)
		eventID := f.event(t, nil)
		reg := f.register(t, eventID, "A001")

		tests := []struct {
			name    string
			in      campus.FeedbackInput
			kind    campus.Kind
			message string
		}{
			{"MissingRating", campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID}, campus.KindValidation, "student_id, event_id, rating required"},
			{"RatingTooHigh", campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID, Rating: 6}, campus.KindValidation, "rating must be an integer 1..5"},
			{"RatingNegative", campus.FeedbackInput{StudentID: reg.StudentID, EventID: eventID, Rating: -1}, campus.KindValidation, "rating must be an integer 1..5"},
			{"NotRegistered", campus.FeedbackInput{StudentID: reg.StudentID, EventID: 999, Rating: 3}, campus.KindValidation, "student not registered for event"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.svc.SubmitFeedback(ctx, tt.in)
				assertKind(t, err, tt.kind, tt.message)
			})
		}
	})
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		in      campus.EventInput
		kind    campus.Kind
		message string
	}{
		{"MissingCollege", campus.EventInput{Name: "n", Type: "t", Date: "d"}, campus.KindValidation, "college_id required"},
		{"MissingName", campus.EventInput{CollegeID: f.college, Type: "t", Date: "d"}, campus.KindValidation, "name required"},
		{"MissingType", campus.EventInput{CollegeID: f.college, Name: "n", Date: "d"}, campus.KindValidation, "type required"},
		{"MissingDate", campus.EventInput{CollegeID: f.college, Name: "n", Type: "t"}, campus.KindValidation, "date required"},
		{"BadStatus", campus.EventInput{CollegeID: f.college, Name: "n", Type: "t", Date: "d", Status: "done"}, campus.KindValidation, "status must be 'active' or 'cancelled'"},
		{"ZeroCapacity", campus.EventInput{CollegeID: f.college, Name: "n", Type: "t", Date: "d", Capacity: intPtr(0)}, campus.KindValidation, "capacity must be a positive integer"},
		{"UnknownCollege", campus.EventInput{CollegeID: 99, Name: "n", Type: "t", Date: "d"}, campus.KindNotFound, "college not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateEvent(ctx, tt.in)
			assertKind(t, err, tt.kind, tt.message)
		})
	}

	t.Run("DefaultsToActive", func(t *testing.T) {
		id := f.event(t, intPtr(50))
		events, err := f.svc.ListEvents(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		var got campus.Event
		for _, e := range events {
			if e.ID == id {
				got = e
			}
		}
		assert.Equal(t, campus.EventActive, got.Status)
		require.NotNil(t, got.Capacity)
		assert.Equal(t, 50, *got.Capacity)
	})
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	eventID := f.event(t, nil)

	require.NoError(t, f.svc.CancelEvent(ctx, eventID))
	require.NoError(t, f.svc.CancelEvent(ctx, eventID), "cancelling twice is a no-op")

	err := f.svc.CancelEvent(ctx, 404)
	assertKind(t, err, campus.KindNotFound, "event not found")
}

func TestCreateStudent_DuplicateRoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.svc.CreateStudent(ctx, campus.StudentInput{CollegeID: f.college, Roll: "ABC001", Name: "Tanvi"})
	require.NoError(t, err)

	_, err = f.svc.CreateStudent(ctx, campus.StudentInput{CollegeID: f.college, Roll: "ABC001", Name: "Ravi"})
	assertKind(t, err, campus.KindConflict, "student roll already exists for this college")

	var de *campus.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, id, de.Metadata["student_id"])

	_, err = f.svc.CreateStudent(ctx, campus.StudentInput{CollegeID: f.college, Name: "No Roll"})
	assertKind(t, err, campus.KindValidation, "roll required")
}
