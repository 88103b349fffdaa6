package campus

// Event lifecycle states.
const (
	EventActive    = "active"
	EventCancelled = "cancelled"
)

// Attendance marks.
const (
	Present = "present"
	Absent  = "absent"
)

// College owns events and students.
type College struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Event is something students register for. Capacity is nil when unbounded.
type Event struct {
	ID        int64  `json:"id"`
	CollegeID int64  `json:"college_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Date      string `json:"date"`
	Capacity  *int   `json:"capacity"`
	Status    string `json:"status"`
}

// Cancelled reports whether the event reached its terminal state.
func (e Event) Cancelled() bool { return e.Status == EventCancelled }

// Student is identified by roll within a college.
type Student struct {
	ID        int64   `json:"id"`
	CollegeID int64   `json:"college_id"`
	Roll      string  `json:"roll"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
}

// Registration records that a student signed up for an event.
type Registration struct {
	ID           int64  `json:"id"`
	StudentID    int64  `json:"student_id"`
	EventID      int64  `json:"event_id"`
	RegisteredOn string `json:"registered_on"`
}

// Attendance is the latest present/absent mark for a registered student.
type Attendance struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"student_id"`
	EventID   int64  `json:"event_id"`
	Status    string `json:"status"`
	MarkedOn  string `json:"marked_on"`
}

// Feedback is a student's 1..5 rating of an event.
type Feedback struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"student_id"`
	EventID   int64  `json:"event_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

// StudentFilter narrows ListStudents. Zero values match everything.
type StudentFilter struct {
	Roll      string
	CollegeID int64
}

// PopularityFilter narrows the event popularity report.
type PopularityFilter struct {
	CollegeID int64
	Type      string
}

// ParticipationFilter narrows the participation report. Limit <= 0 means no limit.
type ParticipationFilter struct {
	CollegeID int64
	Limit     int
}

// EventPopularity is one row of the popularity report.
type EventPopularity struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Date          string `json:"date"`
	Registrations int    `json:"registrations"`
}

// AttendanceReport summarises turnout for one event.
type AttendanceReport struct {
	EventID           int64   `json:"event_id"`
	TotalRegistered   int     `json:"total_registered"`
	Present           int     `json:"present"`
	AttendancePercent float64 `json:"attendance_percent"`
}

// FeedbackReport summarises ratings for one event.
type FeedbackReport struct {
	EventID   int64   `json:"event_id"`
	AvgRating float64 `json:"avg_rating"`
	Responses int     `json:"responses"`
}

// Participation counts the events a student was marked present at.
type Participation struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	Roll      string `json:"roll"`
	Attended  int    `json:"attended"`
}
