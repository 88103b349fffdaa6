package campus

import (
	"context"
	"math"
)

// topStudentsLimit is how many students the top-students report returns.
const topStudentsLimit = 3

// EventPopularity counts registrations per event, busiest first.
// Events without registrations are included with a zero count.
func (s *Service) EventPopularity(ctx context.Context, filter PopularityFilter) ([]EventPopularity, error) {
	return s.store.EventPopularity(ctx, filter)
}

// AttendancePercent reports present marks over registrations for one event.
// An event with no registrations reports 0.
func (s *Service) AttendancePercent(ctx context.Context, eventID int64) (AttendanceReport, error) {
	if eventID <= 0 {
		return AttendanceReport{}, validation("event_id required")
	}
	total, present, err := s.store.AttendanceCounts(ctx, eventID)
	if err != nil {
		return AttendanceReport{}, err
	}
	var pct float64
	if total > 0 {
		pct = round2(float64(present) / float64(total) * 100)
	}
	return AttendanceReport{
		EventID:           eventID,
		TotalRegistered:   total,
		Present:           present,
		AttendancePercent: pct,
	}, nil
}

// AverageFeedback reports the mean rating for one event, 0 when nobody responded.
func (s *Service) AverageFeedback(ctx context.Context, eventID int64) (FeedbackReport, error) {
	if eventID <= 0 {
		return FeedbackReport{}, validation("event_id required")
	}
	sum, responses, err := s.store.FeedbackTotals(ctx, eventID)
	if err != nil {
		return FeedbackReport{}, err
	}
	var avg float64
	if responses > 0 {
		avg = round2(float64(sum) / float64(responses))
	}
	return FeedbackReport{EventID: eventID, AvgRating: avg, Responses: responses}, nil
}

// StudentParticipation counts present marks per student, most active first.
func (s *Service) StudentParticipation(ctx context.Context) ([]Participation, error) {
	return s.store.Participation(ctx, ParticipationFilter{})
}

// TopStudents returns the three most active students, optionally within one college.
func (s *Service) TopStudents(ctx context.Context, collegeID int64) ([]Participation, error) {
	return s.store.Participation(ctx, ParticipationFilter{CollegeID: collegeID, Limit: topStudentsLimit})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
