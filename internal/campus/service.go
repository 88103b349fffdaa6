package campus

import (
	"context"
	"strings"
	"time"
)

// Service coordinates registration, attendance and feedback against a Store.
type Service struct {
	store            Store
	defaultCollegeID int64
	now              func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for registered_on and marked_on.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultCollege sets the college used for implicit students when neither the
// request nor the event names one.
func WithDefaultCollege(id int64) Option {
	return func(s *Service) {
		if id > 0 {
			s.defaultCollegeID = id
		}
	}
}

// NewService creates a service backed by the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, defaultCollegeID: 1, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store handle.
func (s *Service) Store() Store { return s.store }

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// RegisterInput identifies the event and either an existing student or the
// fields needed to find or create one.
type RegisterInput struct {
	EventID int64
	// StudentID is nil when the caller named no student. Any id that was sent,
	// zero or negative included, must resolve to an existing student.
	StudentID *int64
	Name      string
	Roll      string
	CollegeID int64
	Email     *string
}

// RegisterResult is returned on a successful registration.
type RegisterResult struct {
	RegistrationID int64 `json:"registration_id"`
	StudentID      int64 `json:"student_id"`
}

// Register signs a student up for an active event that still has room.
// The event row stays locked for the whole unit so concurrent registrations
// cannot both pass the capacity check.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if in.EventID <= 0 {
		return RegisterResult{}, validation("event_id required")
	}

	var res RegisterResult
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		evt, err := tx.LockEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		if evt == nil {
			return notFound(MsgEventNotFound)
		}
		if evt.Cancelled() {
			return invalidState(MsgEventCancelled)
		}
		if evt.Capacity != nil {
			count, err := tx.CountRegistrations(ctx, evt.ID)
			if err != nil {
				return err
			}
			if count >= *evt.Capacity {
				return NewError(KindCapacityExceeded, MsgEventFull)
			}
		}

		student, err := s.resolveStudent(ctx, tx, *evt, in)
		if err != nil {
			return err
		}

		registered, err := tx.HasRegistration(ctx, student.ID, evt.ID)
		if err != nil {
			return err
		}
		if registered {
			return conflict(MsgAlreadyRegistered)
		}

		reg := Registration{StudentID: student.ID, EventID: evt.ID, RegisteredOn: s.timestamp()}
		if err := tx.InsertRegistration(ctx, &reg); err != nil {
			return err
		}
		res = RegisterResult{RegistrationID: reg.ID, StudentID: student.ID}
		return nil
	})
	return res, err
}

// resolveStudent loads the named student, or finds/creates one by (college, roll).
func (s *Service) resolveStudent(ctx context.Context, tx Tx, evt Event, in RegisterInput) (*Student, error) {
	if in.StudentID != nil {
		st, err := tx.GetStudent(ctx, *in.StudentID)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, notFound(MsgStudentNotFound)
		}
		return st, nil
	}

	name := strings.TrimSpace(in.Name)
	roll := strings.TrimSpace(in.Roll)
	if name == "" || roll == "" {
		return nil, validation(MsgNameRollRequired)
	}

	collegeID := in.CollegeID
	if collegeID <= 0 {
		collegeID = evt.CollegeID
	}
	if collegeID <= 0 {
		collegeID = s.defaultCollegeID
	}

	st, err := tx.FindStudentByRoll(ctx, collegeID, roll)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}

	ok, err := tx.CollegeExists(ctx, collegeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(MsgCollegeNotFound)
	}

	st = &Student{CollegeID: collegeID, Roll: roll, Name: name, Email: normalizeEmail(in.Email)}
	if err := tx.InsertStudent(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// AttendanceInput marks one registered student present or absent.
type AttendanceInput struct {
	StudentID int64
	EventID   int64
	Status    string
}

// MarkAttendance upserts the attendance mark for a registered student of an active event.
func (s *Service) MarkAttendance(ctx context.Context, in AttendanceInput) error {
	if in.StudentID <= 0 || in.EventID <= 0 || in.Status == "" {
		return validation(MsgAttendanceRequired)
	}
	if in.Status != Present && in.Status != Absent {
		return validation(MsgBadAttendance)
	}

	return s.store.WithinTx(ctx, func(tx Tx) error {
		evt, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		if evt == nil {
			return notFound(MsgEventNotFound)
		}
		if evt.Cancelled() {
			return invalidState(MsgEventCancelled)
		}

		registered, err := tx.HasRegistration(ctx, in.StudentID, in.EventID)
		if err != nil {
			return err
		}
		if !registered {
			return validation(MsgNotRegistered)
		}

		return tx.UpsertAttendance(ctx, &Attendance{
			StudentID: in.StudentID,
			EventID:   in.EventID,
			Status:    in.Status,
			MarkedOn:  s.timestamp(),
		})
	})
}

// FeedbackInput rates an event on behalf of a registered student.
// Rating is zero when the caller sent none.
type FeedbackInput struct {
	StudentID int64
	EventID   int64
	Rating    int
	Comment   string
}

// SubmitFeedback upserts a student's rating. The event's status is not consulted,
// so feedback is still accepted after an event is cancelled.
func (s *Service) SubmitFeedback(ctx context.Context, in FeedbackInput) error {
	if in.StudentID <= 0 || in.EventID <= 0 || in.Rating == 0 {
		return validation(MsgFeedbackRequired)
	}
	if in.Rating < 1 || in.Rating > 5 {
		return validation(MsgBadRating)
	}

	return s.store.WithinTx(ctx, func(tx Tx) error {
		registered, err := tx.HasRegistration(ctx, in.StudentID, in.EventID)
		if err != nil {
			return err
		}
		if !registered {
			return validation(MsgNotRegistered)
		}

		return tx.UpsertFeedback(ctx, &Feedback{
			StudentID: in.StudentID,
			EventID:   in.EventID,
			Rating:    in.Rating,
			Comment:   in.Comment,
		})
	})
}

// EventInput describes a new event. Status defaults to active.
type EventInput struct {
	CollegeID int64
	Name      string
	Type      string
	Date      string
	Capacity  *int
	Status    string
}

// CreateEvent validates and stores a new event, returning its id.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (int64, error) {
	switch {
	case in.CollegeID <= 0:
		return 0, validation("college_id required")
	case strings.TrimSpace(in.Name) == "":
		return 0, validation("name required")
	case strings.TrimSpace(in.Type) == "":
		return 0, validation("type required")
	case strings.TrimSpace(in.Date) == "":
		return 0, validation("date required")
	}
	status := in.Status
	if status == "" {
		status = EventActive
	}
	if status != EventActive && status != EventCancelled {
		return 0, validation(MsgBadEventStatus)
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return 0, validation(MsgBadCapacity)
	}

	evt := Event{
		CollegeID: in.CollegeID,
		Name:      strings.TrimSpace(in.Name),
		Type:      strings.TrimSpace(in.Type),
		Date:      strings.TrimSpace(in.Date),
		Capacity:  in.Capacity,
		Status:    status,
	}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		ok, err := tx.CollegeExists(ctx, evt.CollegeID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(MsgCollegeNotFound)
		}
		return tx.InsertEvent(ctx, &evt)
	})
	return evt.ID, err
}

// CancelEvent moves an event to its terminal cancelled state. Cancelling twice is a no-op.
func (s *Service) CancelEvent(ctx context.Context, id int64) error {
	if id <= 0 {
		return notFound(MsgEventNotFound)
	}
	return s.store.WithinTx(ctx, func(tx Tx) error {
		evt, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		if evt == nil {
			return notFound(MsgEventNotFound)
		}
		if evt.Cancelled() {
			return nil
		}
		return tx.SetEventStatus(ctx, id, EventCancelled)
	})
}

// StudentInput describes a student created explicitly.
type StudentInput struct {
	CollegeID int64
	Roll      string
	Name      string
	Email     *string
}

// CreateStudent stores a new student. A duplicate roll within the college is a
// conflict carrying the existing student's id.
func (s *Service) CreateStudent(ctx context.Context, in StudentInput) (int64, error) {
	roll := strings.TrimSpace(in.Roll)
	name := strings.TrimSpace(in.Name)
	switch {
	case in.CollegeID <= 0:
		return 0, validation("college_id required")
	case roll == "":
		return 0, validation("roll required")
	case name == "":
		return 0, validation("name required")
	}

	st := Student{CollegeID: in.CollegeID, Roll: roll, Name: name, Email: normalizeEmail(in.Email)}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		existing, err := tx.FindStudentByRoll(ctx, st.CollegeID, st.Roll)
		if err != nil {
			return err
		}
		if existing != nil {
			return &Error{
				Kind:     KindConflict,
				Message:  MsgDuplicateRoll,
				Metadata: map[string]any{"student_id": existing.ID},
			}
		}
		ok, err := tx.CollegeExists(ctx, st.CollegeID)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(MsgCollegeNotFound)
		}
		return tx.InsertStudent(ctx, &st)
	})
	return st.ID, err
}

// CreateCollege stores a new college.
func (s *Service) CreateCollege(ctx context.Context, name, code string) (int64, error) {
	c := College{Name: strings.TrimSpace(name), Code: strings.TrimSpace(code)}
	if c.Name == "" {
		return 0, validation("name required")
	}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertCollege(ctx, &c)
	})
	return c.ID, err
}

// ListColleges returns all colleges.
func (s *Service) ListColleges(ctx context.Context) ([]College, error) {
	return s.store.ListColleges(ctx)
}

// ListEvents returns all events ordered by date.
func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	return s.store.ListEvents(ctx)
}

// ListStudents returns students matching the filter.
func (s *Service) ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Roll = strings.TrimSpace(filter.Roll)
	return s.store.ListStudents(ctx, filter)
}

// ListEventAttendance returns the attendance marks of one event.
func (s *Service) ListEventAttendance(ctx context.Context, eventID int64) ([]Attendance, error) {
	return s.store.ListAttendance(ctx, eventID)
}

// ListEventFeedback returns the feedback of one event.
func (s *Service) ListEventFeedback(ctx context.Context, eventID int64) ([]Feedback, error) {
	return s.store.ListFeedback(ctx, eventID)
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.TrimSpace(*email)
	if v == "" {
		return nil
	}
	return &v
}
