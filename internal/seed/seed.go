// Package seed loads a small demo campus into an empty store. The rows are
// written in a single transaction and still pass the schema constraints.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campusevents/internal/campus"
)

type college struct{ name, code string }

type event struct {
	college  int // index into colleges
	name     string
	kind     string
	date     string
	capacity int
}

type student struct {
	college int
	roll    string
	name    string
	email   string
}

// pairs index into students and events.
type mark struct {
	student, event int
	status         string
}

type rating struct {
	student, event int
	rating         int
	comment        string
}

var (
	colleges = []college{
		{"ABC College", "ABC"},
		{"XYZ Institute", "XYZ"},
	}
	events = []event{
		{0, "Hackathon 2025", "Hackathon", "2025-09-10", 200},
		{0, "Machine Learning Workshop", "Workshop", "2025-09-12", 50},
		{0, "Tech Fest", "Fest", "2025-09-20", 500},
		{1, "Entrepreneurship Seminar", "Seminar", "2025-09-15", 100},
	}
	students = []student{
		{0, "ABC001", "Tanvi B", "tanvi@example.com"},
		{0, "ABC002", "Ravi K", "ravi@example.com"},
		{0, "ABC003", "Priya S", "priya@example.com"},
		{1, "XYZ001", "Aman L", "aman@example.com"},
		{1, "XYZ002", "Nisha T", "nisha@example.com"},
	}
	registrations = [][2]int{
		{0, 0}, {1, 0}, {2, 1}, {0, 1}, {3, 3}, {4, 3}, {0, 2},
	}
	attendance = []mark{
		{0, 0, campus.Present},
		{1, 0, campus.Absent},
		{0, 1, campus.Present},
		{2, 1, campus.Present},
		{0, 2, campus.Present},
	}
	feedback = []rating{
		{0, 0, 5, "Great!"},
		{1, 0, 4, "Good"},
		{0, 1, 5, "Excellent workshop"},
		{2, 1, 4, "Very helpful"},
		{0, 2, 5, "Loved it"},
	}
)

// Demo populates an empty store in one unit of work. It returns false without
// writing when any college already exists. The catalog lock makes concurrent
// callers queue behind each other, so only the first one seeds.
func Demo(ctx context.Context, st campus.Store, logger *slog.Logger) (bool, error) {
	seeded := false
	err := st.WithinTx(ctx, func(tx campus.Tx) error {
		if err := tx.LockCatalog(ctx); err != nil {
			return fmt.Errorf("lock catalog: %w", err)
		}
		n, err := tx.CountColleges(ctx)
		if err != nil {
			return fmt.Errorf("count colleges: %w", err)
		}
		if n > 0 {
			return nil
		}
		if err := load(ctx, tx, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded && logger != nil {
		logger.InfoContext(ctx, "demo data seeded",
			"colleges", len(colleges), "events", len(events), "students", len(students))
	}
	return seeded, nil
}

func load(ctx context.Context, tx campus.Tx, stamp string) error {
	collegeIDs := make([]int64, len(colleges))
	for i, c := range colleges {
		row := &campus.College{Name: c.name, Code: c.code}
		if err := tx.InsertCollege(ctx, row); err != nil {
			return fmt.Errorf("seed college %s: %w", c.code, err)
		}
		collegeIDs[i] = row.ID
	}

	eventIDs := make([]int64, len(events))
	for i, e := range events {
		capacity := e.capacity
		row := &campus.Event{
			CollegeID: collegeIDs[e.college],
			Name:      e.name,
			Type:      e.kind,
			Date:      e.date,
			Capacity:  &capacity,
			Status:    campus.EventActive,
		}
		if err := tx.InsertEvent(ctx, row); err != nil {
			return fmt.Errorf("seed event %q: %w", e.name, err)
		}
		eventIDs[i] = row.ID
	}

	studentIDs := make([]int64, len(students))
	for i, s := range students {
		email := s.email
		row := &campus.Student{CollegeID: collegeIDs[s.college], Roll: s.roll, Name: s.name, Email: &email}
		if err := tx.InsertStudent(ctx, row); err != nil {
			return fmt.Errorf("seed student %s: %w", s.roll, err)
		}
		studentIDs[i] = row.ID
	}

	for _, r := range registrations {
		row := &campus.Registration{StudentID: studentIDs[r[0]], EventID: eventIDs[r[1]], RegisteredOn: stamp}
		if err := tx.InsertRegistration(ctx, row); err != nil {
			return fmt.Errorf("seed registration: %w", err)
		}
	}
	for _, m := range attendance {
		row := &campus.Attendance{StudentID: studentIDs[m.student], EventID: eventIDs[m.event], Status: m.status, MarkedOn: stamp}
		if err := tx.UpsertAttendance(ctx, row); err != nil {
			return fmt.Errorf("seed attendance: %w", err)
		}
	}
	for _, f := range feedback {
		row := &campus.Feedback{StudentID: studentIDs[f.student], EventID: eventIDs[f.event], Rating: f.rating, Comment: f.comment}
		if err := tx.UpsertFeedback(ctx, row); err != nil {
			return fmt.Errorf("seed feedback: %w", err)
		}
	}
	return nil
}
