package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/query"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `e.id, e.title, e.description, e.date, e.fee, e.is_online, COALESCE(e.url, ''), COALESCE(e.venue, ''),
	e.capacity, e.requires_attendance_control, e.organizer_id, e.image_filename,
	COALESCE((SELECT group_concat(c.category_id) FROM event_categories c WHERE c.event_id = e.id), '')`

type scanner interface{ Scan(...any) error }

// scanEvent reads eventCols plus any extra destinations appended after them.
func scanEvent(row scanner, extra ...any) (*model.Event, error) {
	var e model.Event
	var date, categories string
	var isOnline, control int
	var capacity sql.NullInt64
	var image sql.NullString

	dest := []any{&e.ID, &e.Title, &e.Description, &date, &e.Fee, &isOnline, &e.URL, &e.Venue,
		&capacity, &control, &e.OrganizerID, &image, &categories}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	t, err := database.ParseTime(date)
	if err != nil {
		return nil, err
	}
	e.Date = t
	e.IsOnline = isOnline != 0
	e.RequiresAttendanceControl = control != 0
	if capacity.Valid {
		e.Capacity = &capacity.Int64
	}
	if image.Valid {
		e.ImageFilename = &image.String
	}
	if e.Categories, err = parseIDList(categories); err != nil {
		return nil, err
	}
	return &e, nil
}

// parseIDList parses a group_concat of ids into an ascending slice.
func parseIDList(s string) ([]int64, error) {
	ids := []int64{}
	if s == "" {
		return ids, nil
	}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id list %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events e WHERE e.id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Details returns the event with its organizer names and accepted attendee
// count, or nil when the event does not exist.
func (s *EventStore) Details(ctx context.Context, id int64) (*model.EventDetails, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventCols+`,
		        COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
		        (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = e.id AND a.attendance_status_id = ?)
		   FROM events e
		   LEFT JOIN users u ON u.id = e.organizer_id
		  WHERE e.id = ?`,
		int(model.StatusAccepted), id,
	)

	var d model.EventDetails
	e, err := scanEvent(row, &d.OrganizerFirstName, &d.OrganizerLastName, &d.AttendeeCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event details: %w", err)
	}
	d.Event = *e
	return &d, nil
}

// Create inserts the event and its category links in one transaction and
// returns the new event id.
func (s *EventStore) Create(ctx context.Context, ne model.NewEvent, organizerID int64) (int64, error) {
	var id int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO events (title, description, date, fee, is_online, url, venue, capacity, requires_attendance_control, organizer_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ne.Title, ne.Description, database.FormatTime(ne.Date), ne.Fee, boolInt(ne.IsOnline),
			nullString(ne.URL), nullString(ne.Venue), nullInt(ne.Capacity), boolInt(ne.RequiresAttendanceControl), organizerID,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return insertCategories(ctx, tx, id, ne.CategoryIDs)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertCategories(ctx context.Context, tx *sql.Tx, eventID int64, categoryIDs []int64) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO event_categories (event_id, category_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, categoryID := range categoryIDs {
		if _, err := stmt.ExecContext(ctx, eventID, categoryID); err != nil {
			return fmt.Errorf("insert category %d: %w", categoryID, err)
		}
	}
	return nil
}

// Update applies patch to the event. A non-nil CategoryIDs replaces the
// event's category links in the same transaction as the row update.
func (s *EventStore) Update(ctx context.Context, id int64, patch model.EventPatch) error {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Date != nil {
		set("date", database.FormatTime(*patch.Date))
	}
	if patch.Fee != nil {
		set("fee", *patch.Fee)
	}
	if patch.IsOnline != nil {
		set("is_online", boolInt(*patch.IsOnline))
	}
	if patch.URL != nil {
		set("url", nullString(*patch.URL))
	}
	if patch.Venue != nil {
		set("venue", nullString(*patch.Venue))
	}
	if patch.Capacity != nil {
		set("capacity", *patch.Capacity)
	}
	if patch.RequiresAttendanceControl != nil {
		set("requires_attendance_control", boolInt(*patch.RequiresAttendanceControl))
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if len(sets) > 0 {
			result, err := tx.ExecContext(ctx,
				`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
				append(args, id)...,
			)
			if err != nil {
				return fmt.Errorf("update event: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if err := exactlyOne("update event", n); err != nil {
				return err
			}
		}

		if patch.CategoryIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM event_categories WHERE event_id = ?`, id); err != nil {
				return fmt.Errorf("delete categories: %w", err)
			}
			if err := insertCategories(ctx, tx, id, patch.CategoryIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the event, its attendee records and its category links in
// one transaction. It returns the image filename the event held, if any, so
// the caller can remove the file after commit.
func (s *EventStore) Delete(ctx context.Context, id int64) (*string, error) {
	var image sql.NullString
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT image_filename FROM events WHERE id = ?`, id).Scan(&image)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("get image filename: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = ?`, id); err != nil {
			return fmt.Errorf("delete attendees: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_categories WHERE event_id = ?`, id); err != nil {
			return fmt.Errorf("delete categories: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return exactlyOne("delete event", n)
	})
	if err != nil {
		return nil, err
	}
	if image.Valid {
		return &image.String, nil
	}
	return nil, nil
}

// SetImageFilename records the event's image. Passing nil clears it.
func (s *EventStore) SetImageFilename(ctx context.Context, id int64, filename *string) error {
	var v sql.NullString
	if filename != nil {
		v = sql.NullString{String: *filename, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `UPDATE events SET image_filename = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set image filename: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return exactlyOne("set image filename", n)
}

// Search runs a compiled search statement.
func (s *EventStore) Search(ctx context.Context, stmt query.Statement) ([]model.EventSummary, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	events := []model.EventSummary{}
	for rows.Next() {
		var e model.EventSummary
		var capacity sql.NullInt64
		var date, categories string
		if err := rows.Scan(&e.ID, &e.Title, &capacity, &e.OrganizerFirstName, &e.OrganizerLastName,
			&e.NumAcceptedAttendees, &date, &categories); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		if capacity.Valid {
			e.Capacity = &capacity.Int64
		}
		if e.Date, err = database.ParseTime(date); err != nil {
			return nil, err
		}
		if e.Categories, err = parseIDList(categories); err != nil {
			return nil, err
		}
		e.OrganizerName = model.User{FirstName: e.OrganizerFirstName, LastName: e.OrganizerLastName}.DisplayName()
		events = append(events, e)
	}
	return events, rows.Err()
}
