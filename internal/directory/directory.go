// Package directory owns events: creation, organizer-only edits and
// deletion, category listing and event images.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/image"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/store"
)

// EventRepository is the event storage the directory writes through.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	Details(ctx context.Context, id int64) (*model.EventDetails, error)
	Create(ctx context.Context, ne model.NewEvent, organizerID int64) (int64, error)
	Update(ctx context.Context, id int64, patch model.EventPatch) error
	Delete(ctx context.Context, id int64) (*string, error)
	SetImageFilename(ctx context.Context, id int64, filename *string) error
}

type CategoryLister interface {
	List(ctx context.Context) ([]model.Category, error)
}

// CategoryReference supplies the set of valid category ids.
type CategoryReference interface {
	ValidIDs(ctx context.Context) (map[int64]struct{}, error)
}

type Service struct {
	events     EventRepository
	categories CategoryLister
	valid      CategoryReference
	images     image.Store
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(events EventRepository, categories CategoryLister, valid CategoryReference, images image.Store, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		events:     events,
		categories: categories,
		valid:      valid,
		images:     images,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, s.storageErr("list categories", err)
	}
	return categories, nil
}

func (s *Service) Details(ctx context.Context, id int64) (*model.EventDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	d, err := s.events.Details(ctx, id)
	if err != nil {
		return nil, s.storageErr("get event details", err)
	}
	if d == nil {
		return nil, apperr.NotFound("event not found")
	}
	return d, nil
}

// Create stores a new event owned by organizerID and returns its id.
func (s *Service) Create(ctx context.Context, organizerID int64, ne model.NewEvent) (int64, error) {
	if !ne.Date.After(s.now()) {
		return 0, apperr.Rule(apperr.RuleEventInPast)
	}
	if len(ne.CategoryIDs) == 0 {
		return 0, apperr.Validation("at least one category is required")
	}
	if err := s.checkCategories(ctx, ne.CategoryIDs); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.events.Create(ctx, ne, organizerID)
	if err != nil {
		return 0, s.storageErr("create event", err)
	}
	s.logger.Info("event created", "event_id", id, "organizer_id", organizerID)
	return id, nil
}

// Modify applies patch to an event the requester organizes. Events whose
// date has passed are frozen.
func (s *Service) Modify(ctx context.Context, id, requesterID int64, patch model.EventPatch) error {
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}
	if _, err := s.ownedEvent(ctx, id, requesterID, true); err != nil {
		return err
	}
	if patch.Date != nil && !patch.Date.After(s.now()) {
		return apperr.Rule(apperr.RuleEventInPast)
	}
	if patch.CategoryIDs != nil {
		if len(patch.CategoryIDs) == 0 {
			return apperr.Validation("at least one category is required")
		}
		if err := s.checkCategories(ctx, patch.CategoryIDs); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.events.Update(ctx, id, patch); err != nil {
		return s.writeErr("update event", err)
	}
	s.logger.Info("event updated", "event_id", id)
	return nil
}

// Delete removes an event with its attendee records and category links.
// The event's image is removed afterwards; failing that is only logged.
func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	if _, err := s.ownedEvent(ctx, id, requesterID, false); err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	ref, err := s.events.Delete(dctx, id)
	cancel()
	if err != nil {
		return s.writeErr("delete event", err)
	}
	s.logger.Info("event deleted", "event_id", id)

	if ref != nil {
		s.removeImage(ctx, *ref)
	}
	return nil
}

// Image returns the event's image bytes and content type.
func (s *Service) Image(ctx context.Context, id int64) ([]byte, string, error) {
	ev, err := s.event(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if ev.ImageFilename == nil {
		return nil, "", apperr.NotFound("event has no image")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, contentType, err := s.images.Get(ctx, *ev.ImageFilename)
	if errors.Is(err, image.ErrNotFound) {
		return nil, "", apperr.NotFound("event has no image")
	}
	if err != nil {
		return nil, "", s.storageErr("read image", err)
	}
	return data, contentType, nil
}

// SetImage stores data as the event's image, replacing any previous one.
// It reports whether the event had no image before.
func (s *Service) SetImage(ctx context.Context, id, requesterID int64, data []byte, contentType string) (bool, error) {
	ev, err := s.ownedEvent(ctx, id, requesterID, false)
	if err != nil {
		return false, err
	}
	ext, ok := image.ExtensionFor(contentType)
	if !ok {
		return false, apperr.Validation("image must be image/jpeg, image/png or image/gif")
	}
	if len(data) == 0 {
		return false, apperr.Validation("image body is empty")
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	ref, err := s.images.Put(pctx, data, ext)
	cancel()
	if err != nil {
		return false, s.storageErr("store image", err)
	}

	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.events.SetImageFilename(uctx, id, &ref)
	cancel()
	if err != nil {
		s.removeImage(ctx, ref)
		return false, s.writeErr("set image filename", err)
	}

	if ev.ImageFilename != nil {
		s.removeImage(ctx, *ev.ImageFilename)
	}
	return ev.ImageFilename == nil, nil
}

func (s *Service) removeImage(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.images.Delete(ctx, ref); err != nil {
		s.logger.Warn("remove image", "ref", ref, "error", err)
	}
}

func (s *Service) event(ctx context.Context, id int64) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ev, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageErr("get event", err)
	}
	if ev == nil {
		return nil, apperr.NotFound("event not found")
	}
	return ev, nil
}

// ownedEvent loads the event and checks requesterID organizes it. With
// future set, events whose date has passed are rejected as well.
func (s *Service) ownedEvent(ctx context.Context, id, requesterID int64, future bool) (*model.Event, error) {
	ev, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != requesterID {
		return nil, apperr.Forbidden()
	}
	if future && !ev.Date.After(s.now()) {
		return nil, apperr.Rule(apperr.RuleEditClosed)
	}
	return ev, nil
}

func (s *Service) checkCategories(ctx context.Context, ids []int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	valid, err := s.valid.ValidIDs(ctx)
	if err != nil {
		return s.storageErr("load categories", err)
	}
	for _, id := range ids {
		if _, ok := valid[id]; !ok {
			return apperr.Validation("one or more invalid category IDs")
		}
	}
	return nil
}

func (s *Service) writeErr(op string, err error) error {
	var rc *store.RowCountError
	if errors.As(err, &rc) {
		s.logger.Error("consistency failure", "op", op, "affected", rc.Affected, "error", err)
		return apperr.MarkLogged(&apperr.Error{
			Kind:    apperr.KindConsistency,
			Message: fmt.Sprintf("%s: expected one row, %d affected", op, rc.Affected),
			Err:     err,
		})
	}
	return s.storageErr(op, err)
}

func (s *Service) storageErr(op string, err error) error {
	s.logger.Error("storage failure", "op", op, "error", err)
	return apperr.MarkLogged(apperr.Storage(fmt.Errorf("%s: %w", op, err)))
}
