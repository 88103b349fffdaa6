package campus

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// NewSQLiteRepository runs the Postgres queries against a SQLite database.
// Row locks are dropped: the pool is expected to hold a single connection, so
// transactions already run one at a time.
func NewSQLiteRepository(db *sql.DB, obs QueryObserver) *Repository {
	return newRepository(db, obs, nil, func(q querier) querier { return sqliteQuerier{q: q} })
}

var positional = regexp.MustCompile(`\$(\d+)`)

// rebindSQLite rewrites $n placeholders as ?n and strips FOR UPDATE.
func rebindSQLite(query string) string {
	query = strings.ReplaceAll(query, " FOR UPDATE", "")
	return positional.ReplaceAllString(query, "?${1}")
}

type sqliteQuerier struct {
	q querier
}

func (s sqliteQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, rebindSQLite(query), args...)
}

func (s sqliteQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, rebindSQLite(query), args...)
}

func (s sqliteQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, rebindSQLite(query), args...)
}

// checkMessages maps named CHECK constraints of both schemas to domain messages.
var checkMessages = map[string]string{
	"chk_event_capacity":    MsgBadCapacity,
	"chk_event_status":      MsgBadEventStatus,
	"chk_attendance_status": MsgBadAttendance,
	"chk_feedback_rating":   MsgBadRating,
}

// SQLite reports unique violations by column list rather than constraint name.
var uniqueMessages = map[string]string{
	"students.college_id, students.roll":               MsgDuplicateRoll,
	"registrations.student_id, registrations.event_id": MsgAlreadyRegistered,
}

// translateSQLite maps SQLite constraint failures onto domain errors.
// SQLite does not name the violated foreign key, so every FK failure is a
// generic validation error.
func translateSQLite(liteErr *sqlite.Error, err error) error {
	if liteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := liteErr.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		for cols, m := range uniqueMessages {
			if strings.Contains(msg, cols) {
				return WrapError(KindConflict, m, err)
			}
		}
		return WrapError(KindConflict, "duplicate record", err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return WrapError(KindValidation, MsgMissingReference, err)
	case strings.Contains(msg, "CHECK constraint failed"):
		for name, m := range checkMessages {
			if strings.Contains(msg, name) {
				return WrapError(KindValidation, m, err)
			}
		}
		return WrapError(KindValidation, "check constraint failed", err)
	}
	return WrapError(KindValidation, "constraint failed", err)
}
