package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
)

type AttendeeStore struct {
	db *sql.DB
}

func NewAttendeeStore(db *sql.DB) *AttendeeStore {
	return &AttendeeStore{db: db}
}

// Visibility selects which attendee records a listing may return.
type Visibility struct {
	// All returns every record regardless of status.
	All bool
	// Viewer, when set, adds the viewer's own record to the accepted ones.
	Viewer *int64
}

const attendeeCols = `a.event_id, a.user_id, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
	a.date_of_interest, a.attendance_status_id`

func scanAttendee(row scanner) (*model.Attendee, error) {
	var a model.Attendee
	var dateOfInterest string
	var status int
	if err := row.Scan(&a.EventID, &a.UserID, &a.FirstName, &a.LastName, &dateOfInterest, &status); err != nil {
		return nil, err
	}
	t, err := database.ParseTime(dateOfInterest)
	if err != nil {
		return nil, err
	}
	a.DateOfInterest = t
	a.Status = model.AttendanceStatus(status)
	return &a, nil
}

// List returns the event's attendee records visible under v, ordered by
// date of interest.
func (s *AttendeeStore) List(ctx context.Context, eventID int64, v Visibility) ([]model.Attendee, error) {
	q := `SELECT ` + attendeeCols + `
	        FROM event_attendees a
	        LEFT JOIN users u ON u.id = a.user_id
	       WHERE a.event_id = ?`
	args := []any{eventID}

	switch {
	case v.All:
	case v.Viewer != nil:
		q += ` AND (a.attendance_status_id = ? OR a.user_id = ?)`
		args = append(args, int(model.StatusAccepted), *v.Viewer)
	default:
		q += ` AND a.attendance_status_id = ?`
		args = append(args, int(model.StatusAccepted))
	}
	q += ` ORDER BY a.date_of_interest ASC, a.user_id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	attendees := []model.Attendee{}
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// Get returns one attendee record, or nil when the user is not registered.
func (s *AttendeeStore) Get(ctx context.Context, eventID, userID int64) (*model.Attendee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendeeCols+`
		   FROM event_attendees a
		   LEFT JOIN users u ON u.id = a.user_id
		  WHERE a.event_id = ? AND a.user_id = ?`,
		eventID, userID,
	)
	a, err := scanAttendee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return a, nil
}

// Insert adds an attendee record. It returns ErrDuplicate when the user is
// already registered for the event.
func (s *AttendeeStore) Insert(ctx context.Context, eventID, userID int64, status model.AttendanceStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_attendees (event_id, user_id, date_of_interest, attendance_status_id)
		 VALUES (?, ?, ?, ?)`,
		eventID, userID, database.FormatTime(at), int(status),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert attendee: %w", err)
	}
	return nil
}

// DeleteCancellable removes a registration that has not been rejected.
// The returned error is a *RowCountError unless exactly one row went.
func (s *AttendeeStore) DeleteCancellable(ctx context.Context, eventID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM event_attendees
		  WHERE event_id = ? AND user_id = ? AND attendance_status_id <> ?`,
		eventID, userID, int(model.StatusRejected),
	)
	if err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return exactlyOne("delete attendee", n)
}

// UpdateStatus sets the attendee's status. The returned error is a
// *RowCountError unless exactly one row was updated.
func (s *AttendeeStore) UpdateStatus(ctx context.Context, eventID, userID int64, status model.AttendanceStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE event_attendees SET attendance_status_id = ?
		  WHERE event_id = ? AND user_id = ?`,
		int(status), eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("update attendee status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return exactlyOne("update attendee status", n)
}
