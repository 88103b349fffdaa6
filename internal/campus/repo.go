package campus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// QueryObserver receives the duration and outcome of every store query.
type QueryObserver interface {
	ObserveQuery(operation, table string, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, string, time.Duration, error) {}

// Repository persists campus data in Postgres, or in SQLite when built with
// NewSQLiteRepository.
type Repository struct {
	db          *sql.DB
	txOpts      *sql.TxOptions
	wrap        func(querier) querier
	catalogLock string // empty when the engine already runs one writer at a time
	queries
}

// catalogLockKey is the transaction-scoped advisory lock taken by LockCatalog.
const catalogLockKey = 72_410_002

// NewRepository creates a Postgres repo. obs may be nil.
func NewRepository(db *sql.DB, obs QueryObserver) *Repository {
	r := newRepository(db, obs, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, nil)
	r.catalogLock = `SELECT pg_advisory_xact_lock(` + strconv.Itoa(catalogLockKey) + `)`
	return r
}

func newRepository(db *sql.DB, obs QueryObserver, txOpts *sql.TxOptions, wrap func(querier) querier) *Repository {
	if obs == nil {
		obs = nopObserver{}
	}
	if wrap == nil {
		wrap = func(q querier) querier { return q }
	}
	return &Repository{db: db, txOpts: txOpts, wrap: wrap, queries: queries{q: wrap(db), obs: obs}}
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithinTx runs fn in one transaction. On Postgres that is READ COMMITTED and
// writers that must not interleave take row locks through LockEvent.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, r.txOpts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{queries: queries{q: r.wrap(tx), obs: r.obs}, catalogLock: r.catalogLock}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q   querier
	obs QueryObserver
}

type sqlTx struct {
	queries
	catalogLock string
}

func (q queries) observe(op, table string, start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	q.obs.ObserveQuery(op, table, time.Since(start), err)
}

const eventColumns = `id, college_id, name, type, date, capacity, status`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	if err := row.Scan(&e.ID, &e.CollegeID, &e.Name, &e.Type, &e.Date, &e.Capacity, &e.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

const studentColumns = `id, college_id, roll, name, email`

func scanStudent(row interface{ Scan(...any) error }) (*Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.CollegeID, &s.Roll, &s.Name, &s.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// InsertCollege writes a new college.
func (t *sqlTx) InsertCollege(ctx context.Context, c *College) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO colleges (name, code) VALUES ($1, $2)
		RETURNING id
	`, c.Name, c.Code).Scan(&c.ID)
	t.observe("insert", "colleges", start, err)
	return translate(err)
}

// CollegeExists reports whether a college id is known.
func (t *sqlTx) CollegeExists(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	var ok bool
	err := t.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM colleges WHERE id = $1)`, id).Scan(&ok)
	t.observe("select", "colleges", start, err)
	return ok, err
}

// CountColleges returns the number of colleges.
func (t *sqlTx) CountColleges(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM colleges`).Scan(&n)
	t.observe("count", "colleges", start, err)
	return n, err
}

// LockCatalog takes the catalog advisory lock, released at commit or rollback.
func (t *sqlTx) LockCatalog(ctx context.Context) error {
	if t.catalogLock == "" {
		return nil
	}
	start := time.Now()
	_, err := t.q.ExecContext(ctx, t.catalogLock)
	t.observe("lock", "colleges", start, err)
	return err
}

// InsertEvent writes a new event.
func (t *sqlTx) InsertEvent(ctx context.Context, e *Event) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO events (college_id, name, type, date, capacity, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.CollegeID, e.Name, e.Type, e.Date, e.Capacity, e.Status).Scan(&e.ID)
	t.observe("insert", "events", start, err)
	return translate(err)
}

// GetEvent returns a single event by id.
func (t *sqlTx) GetEvent(ctx context.Context, id int64) (*Event, error) {
	start := time.Now()
	evt, err := scanEvent(t.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	t.observe("select", "events", start, err)
	return evt, err
}

// LockEvent reads an event and holds its row lock until the transaction ends.
func (t *sqlTx) LockEvent(ctx context.Context, id int64) (*Event, error) {
	start := time.Now()
	evt, err := scanEvent(t.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	t.observe("lock", "events", start, err)
	return evt, err
}

// SetEventStatus updates the lifecycle state of an event.
func (t *sqlTx) SetEventStatus(ctx context.Context, id int64, status string) error {
	start := time.Now()
	_, err := t.q.ExecContext(ctx, `UPDATE events SET status = $2 WHERE id = $1`, id, status)
	t.observe("update", "events", start, err)
	return translate(err)
}

// GetStudent returns a single student by id.
func (t *sqlTx) GetStudent(ctx context.Context, id int64) (*Student, error) {
	start := time.Now()
	st, err := scanStudent(t.q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	t.observe("select", "students", start, err)
	return st, err
}

// FindStudentByRoll looks a student up by its per-college roll.
func (t *sqlTx) FindStudentByRoll(ctx context.Context, collegeID int64, roll string) (*Student, error) {
	start := time.Now()
	st, err := scanStudent(t.q.QueryRowContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE college_id = $1 AND roll = $2
	`, collegeID, roll))
	t.observe("select", "students", start, err)
	return st, err
}

// InsertStudent writes a new student.
func (t *sqlTx) InsertStudent(ctx context.Context, s *Student) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO students (college_id, roll, name, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, s.CollegeID, s.Roll, s.Name, s.Email).Scan(&s.ID)
	t.observe("insert", "students", start, err)
	return translate(err)
}

// CountRegistrations counts the registrations of an event.
func (t *sqlTx) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	start := time.Now()
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n)
	t.observe("count", "registrations", start, err)
	return n, err
}

// HasRegistration reports whether the student is registered for the event.
func (t *sqlTx) HasRegistration(ctx context.Context, studentID, eventID int64) (bool, error) {
	start := time.Now()
	var ok bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM registrations WHERE student_id = $1 AND event_id = $2)
	`, studentID, eventID).Scan(&ok)
	t.observe("select", "registrations", start, err)
	return ok, err
}

// InsertRegistration writes a new registration.
func (t *sqlTx) InsertRegistration(ctx context.Context, r *Registration) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO registrations (student_id, event_id, registered_on)
		VALUES ($1, $2, $3)
		RETURNING id
	`, r.StudentID, r.EventID, r.RegisteredOn).Scan(&r.ID)
	t.observe("insert", "registrations", start, err)
	return translate(err)
}

// UpsertAttendance inserts the mark or overwrites the existing one for the pair.
func (t *sqlTx) UpsertAttendance(ctx context.Context, a *Attendance) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, event_id, status, marked_on)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, event_id) DO UPDATE SET
			status = EXCLUDED.status,
			marked_on = EXCLUDED.marked_on
		RETURNING id
	`, a.StudentID, a.EventID, a.Status, a.MarkedOn).Scan(&a.ID)
	t.observe("upsert", "attendance", start, err)
	return translate(err)
}

// UpsertFeedback inserts the feedback or overwrites the existing one for the pair.
func (t *sqlTx) UpsertFeedback(ctx context.Context, f *Feedback) error {
	start := time.Now()
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO feedback (student_id, event_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, event_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			comment = EXCLUDED.comment
		RETURNING id
	`, f.StudentID, f.EventID, f.Rating, f.Comment).Scan(&f.ID)
	t.observe("upsert", "feedback", start, err)
	return translate(err)
}

// ListColleges returns all colleges by id.
func (q queries) ListColleges(ctx context.Context) ([]College, error) {
	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `SELECT id, name, code FROM colleges ORDER BY id`)
	q.observe("select", "colleges", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []College{}
	for rows.Next() {
		var c College
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListEvents returns every event ordered by date.
func (q queries) ListEvents(ctx context.Context) ([]Event, error) {
	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date, id`)
	q.observe("select", "events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Event{}
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *evt)
	}
	return res, rows.Err()
}

// ListStudents returns students with optional roll and college filters.
func (q queries) ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	var w where
	if filter.Roll != "" {
		w.add("roll", filter.Roll)
	}
	if filter.CollegeID > 0 {
		w.add("college_id", filter.CollegeID)
	}

	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `SELECT `+studentColumns+` FROM students`+w.sql()+` ORDER BY id`, w.args...)
	q.observe("select", "students", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *st)
	}
	return res, rows.Err()
}

// ListAttendance returns the attendance marks of one event.
func (q queries) ListAttendance(ctx context.Context, eventID int64) ([]Attendance, error) {
	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, student_id, event_id, status, marked_on
		FROM attendance WHERE event_id = $1
		ORDER BY id
	`, eventID)
	q.observe("select", "attendance", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Attendance{}
	for rows.Next() {
		var a Attendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.EventID, &a.Status, &a.MarkedOn); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListFeedback returns the feedback of one event.
func (q queries) ListFeedback(ctx context.Context, eventID int64) ([]Feedback, error) {
	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, student_id, event_id, rating, comment
		FROM feedback WHERE event_id = $1
		ORDER BY id
	`, eventID)
	q.observe("select", "feedback", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Feedback{}
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.StudentID, &f.EventID, &f.Rating, &f.Comment); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// EventPopularity counts registrations per event with a left join.
func (q queries) EventPopularity(ctx context.Context, filter PopularityFilter) ([]EventPopularity, error) {
	var w where
	if filter.CollegeID > 0 {
		w.add("e.college_id", filter.CollegeID)
	}
	if filter.Type != "" {
		w.add("e.type", filter.Type)
	}

	start := time.Now()
	rows, err := q.q.QueryContext(ctx, `
		SELECT e.id, e.name, e.type, e.date, COUNT(r.id) AS registrations
		FROM events e
		LEFT JOIN registrations r ON r.event_id = e.id`+w.sql()+`
		GROUP BY e.id
		ORDER BY registrations DESC, e.id
	`, w.args...)
	q.observe("report", "events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []EventPopularity{}
	for rows.Next() {
		var p EventPopularity
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Date, &p.Registrations); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// AttendanceCounts returns registrations and present marks for one event.
func (q queries) AttendanceCounts(ctx context.Context, eventID int64) (int, int, error) {
	start := time.Now()
	var registered, present int
	err := q.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM registrations WHERE event_id = $1),
			(SELECT COUNT(*) FROM attendance WHERE event_id = $1 AND status = 'present')
	`, eventID).Scan(&registered, &present)
	q.observe("report", "attendance", start, err)
	return registered, present, err
}

// FeedbackTotals returns the rating sum and count for one event.
func (q queries) FeedbackTotals(ctx context.Context, eventID int64) (int, int, error) {
	start := time.Now()
	var sum, responses int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM feedback WHERE event_id = $1
	`, eventID).Scan(&sum, &responses)
	q.observe("report", "feedback", start, err)
	return sum, responses, err
}

// Participation counts present marks per student with a left join.
func (q queries) Participation(ctx context.Context, filter ParticipationFilter) ([]Participation, error) {
	var w where
	if filter.CollegeID > 0 {
		w.add("s.college_id", filter.CollegeID)
	}
	query := `
		SELECT s.id, s.name, s.roll, COUNT(a.id) AS attended
		FROM students s
		LEFT JOIN attendance a ON a.student_id = s.id AND a.status = 'present'` + w.sql() + `
		GROUP BY s.id
		ORDER BY attended DESC, s.id`
	args := w.args
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	start := time.Now()
	rows, err := q.q.QueryContext(ctx, query, args...)
	q.observe("report", "students", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Participation{}
	for rows.Next() {
		var p Participation
		if err := rows.Scan(&p.StudentID, &p.Name, &p.Roll, &p.Attended); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// where accumulates equality clauses with positional placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(column string, value any) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, column+" = $"+strconv.Itoa(len(w.args)))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// translate maps constraint violations raised by Postgres onto domain errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return translateSQLite(liteErr, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case "uix_college_roll":
			return WrapError(KindConflict, MsgDuplicateRoll, err)
		case "uix_student_event":
			return WrapError(KindConflict, MsgAlreadyRegistered, err)
		}
		return WrapError(KindConflict, "duplicate record", err)
	case "23503":
		switch pgErr.ConstraintName {
		case "fk_attendance_registration", "fk_feedback_registration":
			return WrapError(KindValidation, MsgNotRegistered, err)
		case "fk_events_college", "fk_students_college":
			return WrapError(KindNotFound, MsgCollegeNotFound, err)
		case "fk_registrations_event":
			return WrapError(KindNotFound, MsgEventNotFound, err)
		case "fk_registrations_student":
			return WrapError(KindNotFound, MsgStudentNotFound, err)
		}
		return WrapError(KindValidation, MsgMissingReference, err)
	case "23514":
		if msg, ok := checkMessages[pgErr.ConstraintName]; ok {
			return WrapError(KindValidation, msg, err)
		}
		return WrapError(KindValidation, pgErr.Message, err)
	}
	return err
}
