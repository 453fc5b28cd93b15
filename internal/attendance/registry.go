// Package attendance governs attendee records: who may see them, who may
// register or cancel, and how an organizer moves a record between statuses.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/store"
)

// EventSource looks up events by id, returning nil when absent.
type EventSource interface {
	GetByID(ctx context.Context, id int64) (*model.Event, error)
}

// RecordStore persists attendee records. Insert must report a second record
// for the same event and user as store.ErrDuplicate, and the delete and update
// calls must report a *store.RowCountError unless exactly one row changed.
type RecordStore interface {
	List(ctx context.Context, eventID int64, v store.Visibility) ([]model.Attendee, error)
	Get(ctx context.Context, eventID, userID int64) (*model.Attendee, error)
	Insert(ctx context.Context, eventID, userID int64, status model.AttendanceStatus, at time.Time) error
	DeleteCancellable(ctx context.Context, eventID, userID int64) error
	UpdateStatus(ctx context.Context, eventID, userID int64, status model.AttendanceStatus) error
}

type Registry struct {
	events  EventSource
	records RecordStore
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now for date checks and registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithTimeout bounds each storage call. The default is five seconds.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

func NewRegistry(events EventSource, records RecordStore, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		events:  events,
		records: records,
		timeout: 5 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAttendees returns the records requester may see. The organizer sees
// every record; anyone else sees accepted records plus their own.
func (r *Registry) ListAttendees(ctx context.Context, eventID int64, requesterID *int64) ([]model.Attendee, error) {
	ev, err := r.event(ctx, eventID)
	if err != nil {
		return nil, err
	}

	v := store.Visibility{Viewer: requesterID}
	if requesterID != nil && *requesterID == ev.OrganizerID {
		v = store.Visibility{All: true}
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	attendees, err := r.records.List(sctx, eventID, v)
	if err != nil {
		return nil, r.storageErr("list attendees", err)
	}
	return attendees, nil
}

// Register creates a record for userID. Events with attendance control put
// new registrants in pending, except the organizer who is accepted directly.
func (r *Registry) Register(ctx context.Context, eventID, userID int64) (*model.Attendee, error) {
	ev, err := r.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if !ev.Date.After(now) {
		return nil, apperr.Rule(apperr.RuleEventClosed)
	}

	status := model.StatusAccepted
	if ev.RequiresAttendanceControl && userID != ev.OrganizerID {
		status = model.StatusPending
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err = r.records.Insert(sctx, eventID, userID, status, now)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Rule(apperr.RuleAlreadyRegistered)
	}
	if err != nil {
		return nil, r.storageErr("register attendee", err)
	}

	r.logger.Info("attendee registered", "event_id", eventID, "user_id", userID, "status", status)
	return &model.Attendee{EventID: eventID, UserID: userID, DateOfInterest: now, Status: status}, nil
}

// Cancel removes userID's own registration. Rejected records cannot be
// cancelled by the registrant.
func (r *Registry) Cancel(ctx context.Context, eventID, userID int64) error {
	ev, err := r.event(ctx, eventID)
	if err != nil {
		return err
	}

	rec, err := r.record(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status == model.StatusRejected {
		return apperr.Rule(apperr.RuleNotRegistered)
	}
	if !ev.Date.After(r.now()) {
		return apperr.Rule(apperr.RuleEventOccurred)
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.records.DeleteCancellable(sctx, eventID, userID); err != nil {
		return r.writeErr("cancel registration", err)
	}

	r.logger.Info("attendee cancelled", "event_id", eventID, "user_id", userID)
	return nil
}

// ChangeStatus sets the status of targetUserID's record. Only the event's
// organizer may do this.
func (r *Registry) ChangeStatus(ctx context.Context, eventID, targetUserID, requesterID int64, status model.AttendanceStatus) error {
	return r.changeStatus(ctx, eventID, targetUserID, requesterID, status, nil)
}

// ChangeStatusByName is ChangeStatus for a status given by its wire name. An
// unknown name is reported only after the existence and organizer checks.
func (r *Registry) ChangeStatusByName(ctx context.Context, eventID, targetUserID, requesterID int64, name string) (model.AttendanceStatus, error) {
	status, parseErr := model.ParseAttendanceStatus(name)
	return status, r.changeStatus(ctx, eventID, targetUserID, requesterID, status, parseErr)
}

func (r *Registry) changeStatus(ctx context.Context, eventID, targetUserID, requesterID int64, status model.AttendanceStatus, parseErr error) error {
	ev, err := r.event(ctx, eventID)
	if err != nil {
		return err
	}

	rec, err := r.record(ctx, eventID, targetUserID)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.NotFound("attendee not found")
	}
	if requesterID != ev.OrganizerID {
		return apperr.Forbidden()
	}
	if parseErr != nil {
		return apperr.Validation(fmt.Sprintf("%v: status must be one of accepted, pending, rejected", parseErr))
	}
	if !status.Valid() {
		return apperr.Validation("status must be one of accepted, pending, rejected")
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.records.UpdateStatus(sctx, eventID, targetUserID, status); err != nil {
		return r.writeErr("change attendee status", err)
	}

	r.logger.Info("attendee status changed",
		"event_id", eventID, "user_id", targetUserID, "from", rec.Status, "to", status)
	return nil
}

func (r *Registry) event(ctx context.Context, eventID int64) (*model.Event, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ev, err := r.events.GetByID(sctx, eventID)
	if err != nil {
		return nil, r.storageErr("get event", err)
	}
	if ev == nil {
		return nil, apperr.NotFound("event not found")
	}
	return ev, nil
}

func (r *Registry) record(ctx context.Context, eventID, userID int64) (*model.Attendee, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	rec, err := r.records.Get(sctx, eventID, userID)
	if err != nil {
		return nil, r.storageErr("get attendee", err)
	}
	return rec, nil
}

// writeErr classifies a failed single-row write. A row count other than one
// means a precondition checked above no longer holds.
func (r *Registry) writeErr(op string, err error) error {
	var rc *store.RowCountError
	if errors.As(err, &rc) {
		r.logger.Error("consistency failure", "op", op, "affected", rc.Affected, "error", err)
		return apperr.MarkLogged(&apperr.Error{
			Kind:    apperr.KindConsistency,
			Message: fmt.Sprintf("%s: expected one row, %d affected", op, rc.Affected),
			Err:     err,
		})
	}
	return r.storageErr(op, err)
}

func (r *Registry) storageErr(op string, err error) error {
	r.logger.Error("storage failure", "op", op, "error", err)
	return apperr.MarkLogged(apperr.Storage(fmt.Errorf("%s: %w", op, err)))
}
