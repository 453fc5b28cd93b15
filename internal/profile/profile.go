// Package profile owns user profiles: the public view, self-service edits
// and profile images.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/eventhub/internal/apperr"
	"github.com/dukerupert/eventhub/internal/image"
	"github.com/dukerupert/eventhub/internal/model"
	"github.com/dukerupert/eventhub/internal/store"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, id int64, patch model.UserPatch) error
	SetImageFilename(ctx context.Context, id int64, filename *string) error
}

// Patch is a requested profile change. Password must be accompanied by the
// user's CurrentPassword.
type Patch struct {
	FirstName       *string
	LastName        *string
	Email           *string
	Password        *string
	CurrentPassword *string
}

type Service struct {
	users   UserRepository
	images  image.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(users UserRepository, images image.Store, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{users: users, images: images, timeout: timeout, logger: logger}
}

// View returns the user's public profile. The email is included only when
// requesterID is the user.
func (s *Service) View(ctx context.Context, id int64, requesterID *int64) (*model.UserView, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &model.UserView{FirstName: u.FirstName, LastName: u.LastName}
	if requesterID != nil && *requesterID == id {
		v.Email = u.Email
	}
	return v, nil
}

// Modify applies p to the user's own profile.
func (s *Service) Modify(ctx context.Context, id, requesterID int64, p Patch) error {
	u, err := s.ownUser(ctx, id, requesterID)
	if err != nil {
		return err
	}

	var patch model.UserPatch
	patch.FirstName = trimmed(p.FirstName)
	patch.LastName = trimmed(p.LastName)
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		patch.Email = &email
	}
	for _, f := range []struct {
		name  string
		value *string
	}{{"firstName", patch.FirstName}, {"lastName", patch.LastName}, {"email", patch.Email}, {"password", p.Password}} {
		if f.value != nil && *f.value == "" {
			return apperr.Validation(f.name + " must not be empty")
		}
	}
	if p.Password != nil {
		if p.CurrentPassword == nil {
			return apperr.Validation("currentPassword is required to change password")
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(*p.CurrentPassword)) != nil {
			return &apperr.Error{Kind: apperr.KindAuthorization, Message: "incorrect current password"}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*p.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		h := string(hash)
		patch.Password = &h
	}
	if patch.Empty() {
		return apperr.Validation("no changes provided")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.users.Update(ctx, id, patch)
	if errors.Is(err, store.ErrDuplicate) {
		return apperr.Validation("email already in use")
	}
	if err != nil {
		return s.writeErr("update user", err)
	}
	s.logger.Info("user modified", "user_id", id, "password_changed", patch.Password != nil)
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// Image returns the user's profile image bytes and content type.
func (s *Service) Image(ctx context.Context, id int64) ([]byte, string, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if u.ImageFilename == nil {
		return nil, "", apperr.NotFound("user has no image")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, contentType, err := s.images.Get(ctx, *u.ImageFilename)
	if errors.Is(err, image.ErrNotFound) {
		return nil, "", apperr.NotFound("user has no image")
	}
	if err != nil {
		return nil, "", s.storageErr("read image", err)
	}
	return data, contentType, nil
}

// SetImage stores data as the user's profile image, replacing any previous
// one. It reports whether the user had no image before.
func (s *Service) SetImage(ctx context.Context, id, requesterID int64, data []byte, contentType string) (bool, error) {
	u, err := s.ownUser(ctx, id, requesterID)
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
	err = s.users.SetImageFilename(uctx, id, &ref)
	cancel()
	if err != nil {
		s.removeImage(ctx, ref)
		return false, s.writeErr("set user image filename", err)
	}

	if u.ImageFilename != nil {
		s.removeImage(ctx, *u.ImageFilename)
	}
	return u.ImageFilename == nil, nil
}

// DeleteImage clears the user's profile image and removes the stored file.
func (s *Service) DeleteImage(ctx context.Context, id, requesterID int64) error {
	u, err := s.ownUser(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if u.ImageFilename == nil {
		return apperr.NotFound("user has no image")
	}

	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.users.SetImageFilename(uctx, id, nil)
	cancel()
	if err != nil {
		return s.writeErr("clear user image filename", err)
	}
	s.removeImage(ctx, *u.ImageFilename)
	return nil
}

func (s *Service) removeImage(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.images.Delete(ctx, ref); err != nil {
		s.logger.Warn("remove image", "ref", ref, "error", err)
	}
}

func (s *Service) user(ctx context.Context, id int64) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageErr("get user", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// ownUser loads the user and checks the requester is that user.
func (s *Service) ownUser(ctx context.Context, id, requesterID int64) (*model.User, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	if id != requesterID {
		return nil, apperr.Forbidden()
	}
	return u, nil
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
