package model

import (
	"fmt"
	"strings"
	"time"
)

// AttendanceStatus values match the attendance_statuses reference table.
type AttendanceStatus int

const (
	StatusAccepted AttendanceStatus = 1
	StatusPending  AttendanceStatus = 2
	StatusRejected AttendanceStatus = 3
)

func (s AttendanceStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusPending:
		return "pending"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s AttendanceStatus) Valid() bool {
	return s == StatusAccepted || s == StatusPending || s == StatusRejected
}

func (s AttendanceStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid attendance status %d", int(s))
	}
	return []byte(s.String()), nil
}

// ParseAttendanceStatus accepts the lowercase names used on the wire,
// ignoring case and surrounding space.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted":
		return StatusAccepted, nil
	case "pending":
		return StatusPending, nil
	case "rejected":
		return StatusRejected, nil
	}
	return 0, fmt.Errorf("invalid attendance status %q", s)
}

type Attendee struct {
	EventID        int64            `json:"-"`
	UserID         int64            `json:"attendeeId"`
	FirstName      string           `json:"firstName"`
	LastName       string           `json:"lastName"`
	DateOfInterest time.Time        `json:"dateOfInterest"`
	Status         AttendanceStatus `json:"status"`
}
