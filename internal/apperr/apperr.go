// Package apperr defines the error taxonomy shared by the event and
// attendance services. Handlers translate a Kind into an HTTP status; the
// services never know about transport.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindBusinessRule
	KindStorage
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindStorage:
		return "storage"
	case KindConsistency:
		return "consistency"
	default:
		return "internal"
	}
}

// Business rule messages. Each violated rule has exactly one message.
const (
	RuleEventClosed       = "cannot register for an event that has closed"
	RuleAlreadyRegistered = "cannot register for an event more than once"
	RuleNotRegistered     = "cannot unregister from an event without first registering for it"
	RuleEventOccurred     = "cannot unregister from an event that has already occurred"
	RuleEventInPast       = "event date must be in the future"
	RuleEditClosed        = "cannot edit an event that has already occurred"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error

	logged bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Forbidden() *Error {
	return &Error{Kind: KindAuthorization, Message: "forbidden"}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Rule(rule string) *Error {
	return &Error{Kind: KindBusinessRule, Message: rule}
}

func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage failure", Err: err}
}

func Consistency(msg string) *Error {
	return &Error{Kind: KindConsistency, Message: msg}
}

// MarkLogged records that err has been written to the log at the point of
// detection so upstream callers do not log it again.
func MarkLogged(err error) error {
	var e *Error
	if errors.As(err, &e) {
		e.logged = true
	}
	return err
}

func IsLogged(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.logged
}

// KindOf reports the Kind of err, or KindInternal for errors outside the
// taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the caller-facing message for err. Internal kinds never
// expose their cause.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindStorage, KindConsistency, KindInternal:
		return "internal server error"
	}
	return e.Message
}
