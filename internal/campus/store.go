package campus

import "context"

// Store is the handle every engine operation runs against.
// Writes happen inside WithinTx; reads outside a transaction go through Reader.
type Store interface {
	Reader
	// WithinTx runs fn as one atomic unit. Any error from fn rolls the unit back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the transactional view of the store. Lookups return nil, nil when the row is missing.
type Tx interface {
	InsertCollege(ctx context.Context, c *College) error
	CollegeExists(ctx context.Context, id int64) (bool, error)
	CountColleges(ctx context.Context) (int, error)
	// LockCatalog serializes catalog bootstrap across processes until the unit ends.
	LockCatalog(ctx context.Context) error

	InsertEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id int64) (*Event, error)
	// LockEvent reads the event and holds it against concurrent writers until the unit ends.
	LockEvent(ctx context.Context, id int64) (*Event, error)
	SetEventStatus(ctx context.Context, id int64, status string) error

	GetStudent(ctx context.Context, id int64) (*Student, error)
	FindStudentByRoll(ctx context.Context, collegeID int64, roll string) (*Student, error)
	InsertStudent(ctx context.Context, s *Student) error

	CountRegistrations(ctx context.Context, eventID int64) (int, error)
	HasRegistration(ctx context.Context, studentID, eventID int64) (bool, error)
	InsertRegistration(ctx context.Context, r *Registration) error

	UpsertAttendance(ctx context.Context, a *Attendance) error
	UpsertFeedback(ctx context.Context, f *Feedback) error
}

// Reader holds the read-only queries used by listings and reports.
type Reader interface {
	ListColleges(ctx context.Context) ([]College, error)
	ListEvents(ctx context.Context) ([]Event, error)
	ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
	ListAttendance(ctx context.Context, eventID int64) ([]Attendance, error)
	ListFeedback(ctx context.Context, eventID int64) ([]Feedback, error)

	EventPopularity(ctx context.Context, filter PopularityFilter) ([]EventPopularity, error)
	// AttendanceCounts returns the number of registrations and present marks for an event.
	AttendanceCounts(ctx context.Context, eventID int64) (registered, present int, err error)
	// FeedbackTotals returns the rating sum and response count for an event.
	FeedbackTotals(ctx context.Context, eventID int64) (sum, responses int, err error)
	Participation(ctx context.Context, filter ParticipationFilter) ([]Participation, error)
}
