package model

import "time"

type Event struct {
	ID                        int64     `json:"eventId"`
	Title                     string    `json:"title"`
	Description               string    `json:"description"`
	Date                      time.Time `json:"date"`
	Fee                       float64   `json:"fee"`
	IsOnline                  bool      `json:"isOnline"`
	URL                       string    `json:"url"`
	Venue                     string    `json:"venue"`
	Capacity                  *int64    `json:"capacity"`
	RequiresAttendanceControl bool      `json:"requiresAttendanceControl"`
	OrganizerID               int64     `json:"organizerId"`
	Categories                []int64   `json:"categories"`
	ImageFilename             *string   `json:"-"`
}

// EventDetails is the single-event view with organizer names and the
// accepted attendee count joined in.
type EventDetails struct {
	Event
	OrganizerFirstName string `json:"organizerFirstName"`
	OrganizerLastName  string `json:"organizerLastName"`
	AttendeeCount      int64  `json:"attendeeCount"`
}

// EventSummary is one row of a search result.
type EventSummary struct {
	ID                   int64     `json:"eventId"`
	Title                string    `json:"title"`
	Capacity             *int64    `json:"capacity"`
	OrganizerName        string    `json:"organizerName"`
	OrganizerFirstName   string    `json:"organizerFirstName"`
	OrganizerLastName    string    `json:"organizerLastName"`
	NumAcceptedAttendees int64     `json:"numAcceptedAttendees"`
	Date                 time.Time `json:"date"`
	Categories           []int64   `json:"categories"`
}

// NewEvent holds the fields accepted when an event is created.
type NewEvent struct {
	Title                     string
	Description               string
	Date                      time.Time
	Fee                       float64
	IsOnline                  bool
	URL                       string
	Venue                     string
	Capacity                  *int64
	RequiresAttendanceControl bool
	CategoryIDs               []int64
}

// EventPatch lists the only event fields a modification may write. Nil
// fields are left untouched.
type EventPatch struct {
	Title                     *string
	Description               *string
	Date                      *time.Time
	Fee                       *float64
	IsOnline                  *bool
	URL                       *string
	Venue                     *string
	Capacity                  *int64
	RequiresAttendanceControl *bool
	CategoryIDs               []int64
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil && p.Fee == nil &&
		p.IsOnline == nil && p.URL == nil && p.Venue == nil && p.Capacity == nil &&
		p.RequiresAttendanceControl == nil && p.CategoryIDs == nil
}

type Category struct {
	ID   int64  `json:"categoryId"`
	Name string `json:"name"`
}
