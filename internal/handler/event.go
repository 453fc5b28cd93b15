package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/auth"
	"github.com/dukerupert/eventhub/internal/directory"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/query"
	"github.com/dukerupert/eventhub/internal/search"
	"github.com/dukerupert/eventhub/internal/websocket"
)

// maxImageSize caps image uploads.
const maxImageSize = 10 << 20

type EventHandler struct {
	directory *directory.Service
	search    *search.Service
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewEventHandler(dir *directory.Service, srch *search.Service, hub *websocket.Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{directory: dir, search: srch, hub: hub, logger: logger}
}

func (h *EventHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// eventDate accepts RFC 3339 timestamps and "2006-01-02 15:04:05" in UTC.
type eventDate struct {
	time.Time
}

func (d *eventDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

type createEventRequest struct {
	Title                     string     `json:"title" validate:"required,max=128"`
	Description               string     `json:"description" validate:"required,max=1024"`
	CategoryIDs               []int64    `json:"categoryIds" validate:"required,min=1,dive,gt=0"`
	Date                      *eventDate `json:"date" validate:"required"`
	IsOnline                  bool       `json:"isOnline"`
	URL                       string     `json:"url" validate:"omitempty,url,max=256"`
	Venue                     string     `json:"venue" validate:"omitempty,max=256"`
	Capacity                  *int64     `json:"capacity" validate:"omitempty,gte=1"`
	RequiresAttendanceControl bool       `json:"requiresAttendanceControl"`
	Fee                       *float64   `json:"fee" validate:"omitempty,gte=0"`
}

type patchEventRequest struct {
	Title                     *string    `json:"title" validate:"omitempty,min=1,max=128"`
	Description               *string    `json:"description" validate:"omitempty,min=1,max=1024"`
	CategoryIDs               []int64    `json:"categoryIds" validate:"omitempty,dive,gt=0"`
	Date                      *eventDate `json:"date"`
	IsOnline                  *bool      `json:"isOnline"`
	URL                       *string    `json:"url" validate:"omitempty,max=256"`
	Venue                     *string    `json:"venue" validate:"omitempty,max=256"`
	Capacity                  *int64     `json:"capacity" validate:"omitempty,gte=1"`
	RequiresAttendanceControl *bool      `json:"requiresAttendanceControl"`
	Fee                       *float64   `json:"fee" validate:"omitempty,gte=0"`
}

func (req patchEventRequest) patch() model.EventPatch {
	p := model.EventPatch{
		Title:                     req.Title,
		Description:               req.Description,
		IsOnline:                  req.IsOnline,
		URL:                       req.URL,
		Venue:                     req.Venue,
		Capacity:                  req.Capacity,
		RequiresAttendanceControl: req.RequiresAttendanceControl,
		Fee:                       req.Fee,
		CategoryIDs:               req.CategoryIDs,
	}
	if req.Date != nil {
		p.Date = &req.Date.Time
	}
	return p
}

// Search handles GET /api/events.
func (h *EventHandler) Search(w http.ResponseWriter, r *http.Request) {
	spec, err := parseFilterSpec(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	events, err := h.search.Search(r.Context(), spec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseFilterSpec(r *http.Request) (query.FilterSpec, error) {
	q := r.URL.Query()
	spec := query.FilterSpec{Text: q.Get("q")}

	for _, raw := range q["categoryIds"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return spec, apperr.Validation("categoryIds must be integers")
			}
			spec.CategoryIDs = append(spec.CategoryIDs, id)
		}
	}

	if v := q.Get("organizerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return spec, apperr.Validation("organizerId must be an integer")
		}
		spec.OrganizerID = &id
	}

	sortBy, err := query.ParseSortKey(q.Get("sortBy"))
	if err != nil {
		return spec, err
	}
	spec.SortBy = sortBy

	if spec.Limit, err = intParam(q.Get("count"), "count"); err != nil {
		return spec, err
	}
	if spec.Offset, err = intParam(q.Get("startIndex"), "startIndex"); err != nil {
		return spec, err
	}

	if spec.Where, err = query.ParseFilter(q.Get("filter")); err != nil {
		return spec, err
	}
	return spec, nil
}

func intParam(v, name string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, apperr.Validation(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return &n, nil
}

// Categories handles GET /api/events/categories.
func (h *EventHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.directory.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d, err := h.directory.Details(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ne := model.NewEvent{
		Title:                     strings.TrimSpace(req.Title),
		Description:               req.Description,
		Date:                      req.Date.Time,
		IsOnline:                  req.IsOnline,
		URL:                       req.URL,
		Venue:                     req.Venue,
		Capacity:                  req.Capacity,
		RequiresAttendanceControl: req.RequiresAttendanceControl,
		CategoryIDs:               req.CategoryIDs,
	}
	if req.Fee != nil {
		ne.Fee = *req.Fee
	}

	id, err := h.directory.Create(r.Context(), auth.UserID(r.Context()), ne)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("event", "created", id, nil))
	writeJSON(w, http.StatusCreated, map[string]int64{"eventId": id})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req patchEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.directory.Modify(r.Context(), id, auth.UserID(r.Context()), req.patch()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("event", "updated", id, nil))
	w.WriteHeader(http.StatusOK)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.directory.Delete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("event", "deleted", id, nil))
	w.WriteHeader(http.StatusOK)
}

// GetImage handles GET /api/events/{id}/image.
func (h *EventHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	data, contentType, err := h.directory.Image(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PutImage handles PUT /api/events/{id}/image. The body is the raw image.
func (h *EventHandler) PutImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageSize))
	if err != nil {
		writeMessage(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	created, err := h.directory.SetImage(r.Context(), id, auth.UserID(r.Context()), data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.broadcast(websocket.NewMessage("event", "image_updated", id, nil))
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}
