package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/eventhub/internal/database"
	"github.com/dukerupert/eventhub/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var createdAt string
	var image sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Password, &image, &createdAt); err != nil {
		return nil, err
	}
	if image.Valid {
		u.ImageFilename = &image.String
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

const userCols = `id, email, first_name, last_name, password, image_filename, created_at`

// Create inserts a user with an already hashed password. It returns
// ErrDuplicate when the email is taken.
func (s *UserStore) Create(ctx context.Context, email, firstName, lastName, passwordHash string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, first_name, last_name, password) VALUES (?, ?, ?, ?)`,
		email, firstName, lastName, passwordHash,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// Update applies patch to the user. It returns ErrDuplicate when the new
// email is taken and a *RowCountError when the user is gone.
func (s *UserStore) Update(ctx context.Context, id int64, patch model.UserPatch) error {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Password != nil {
		set("password", *patch.Password)
	}
	if len(sets) == 0 {
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		append(args, id)...,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return exactlyOne("update user", n)
}

// SetImageFilename records the user's profile image. Passing nil clears it.
func (s *UserStore) SetImageFilename(ctx context.Context, id int64, filename *string) error {
	var v sql.NullString
	if filename != nil {
		v = sql.NullString{String: *filename, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET image_filename = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set user image filename: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return exactlyOne("set user image filename", n)
}
