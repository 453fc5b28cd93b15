package model

import "time"

type User struct {
	ID            int64     `json:"userId"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Password      string    `json:"-"`
	ImageFilename *string   `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserView is the public shape of a user. Email is set only when the user
// views themselves.
type UserView struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// UserPatch lists the user columns that may be changed. Password holds an
// already hashed value.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

func (p UserPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Password == nil
}
