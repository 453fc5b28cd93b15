package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/auth"
	"github.com/dukerupert/eventhub/internal/profile"
	"github.com/dukerupert/eventhub/internal/store"
)

type UserHandler struct {
	users   *store.UserStore
	profile *profile.Service
	tokens  *auth.Tokens
	logger  *slog.Logger
}

func NewUserHandler(users *store.UserStore, profiles *profile.Service, tokens *auth.Tokens, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, profile: profiles, tokens: tokens, logger: logger}
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=64"`
	LastName  string `json:"lastName" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,email,max=256"`
	Password  string `json:"password" validate:"required,min=6,max=64"`
}

// patchUserRequest lists the only fields a user may change on their profile.
type patchUserRequest struct {
	FirstName       *string `json:"firstName" validate:"omitempty,min=1,max=64"`
	LastName        *string `json:"lastName" validate:"omitempty,min=1,max=64"`
	Email           *string `json:"email" validate:"omitempty,email,max=256"`
	Password        *string `json:"password" validate:"omitempty,min=6,max=64"`
	CurrentPassword *string `json:"currentPassword"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := h.users.Create(r.Context(), email, strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, r, h.logger, apperr.Validation("email already in use"))
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, map[string]int64{"userId": u.ID})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": u.ID, "token": token})
}

// Get handles GET /api/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	v, err := h.profile.View(r.Context(), id, auth.RequesterID(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update handles PATCH /api/users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req patchUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err = h.profile.Modify(r.Context(), id, auth.UserID(r.Context()), profile.Patch{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetImage handles GET /api/users/{id}/image.
func (h *UserHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	data, contentType, err := h.profile.Image(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PutImage handles PUT /api/users/{id}/image. The body is the raw image.
func (h *UserHandler) PutImage(w http.ResponseWriter, r *http.Request) {
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

	created, err := h.profile.SetImage(r.Context(), id, auth.UserID(r.Context()), data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteImage handles DELETE /api/users/{id}/image.
func (h *UserHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.profile.DeleteImage(r.Context(), id, auth.UserID(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
