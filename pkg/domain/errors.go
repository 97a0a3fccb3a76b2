package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies caller-input and authorization failures. None of them
// are transient.
type ErrorCode string

// Error codes surfaced by meeting operations.
const (
	CodeInvalidParticipants ErrorCode = "invalid_participants"
	CodeInvalidTimeRange    ErrorCode = "invalid_time_range"
	CodeNotFound            ErrorCode = "not_found"
	CodeNotOrganizer        ErrorCode = "not_organizer"
	CodeMeetingCancelled    ErrorCode = "meeting_cancelled"
	CodeAlreadyCancelled    ErrorCode = "already_cancelled"
)

var codeMessages = map[ErrorCode]string{
	CodeInvalidParticipants: "At least one participant is required.",
	CodeInvalidTimeRange:    "Start time must be before end time.",
	CodeNotFound:            "Meeting not found.",
	CodeNotOrganizer:        "Not the meeting organizer.",
	CodeMeetingCancelled:    "Meeting is cancelled.",
	CodeAlreadyCancelled:    "Meeting is already cancelled.",
}

// Error is the typed failure returned by meeting operations. Two errors match
// under errors.Is when their codes are equal, so the sentinels below can be
// compared against errors carrying meeting context.
type Error struct {
	Code      ErrorCode
	MeetingID MeetingID
	Identity  Identity
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrInvalidParticipants = &Error{Code: CodeInvalidParticipants}
	ErrInvalidTimeRange    = &Error{Code: CodeInvalidTimeRange}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrNotOrganizer        = &Error{Code: CodeNotOrganizer}
	ErrMeetingCancelled    = &Error{Code: CodeMeetingCancelled}
	ErrAlreadyCancelled    = &Error{Code: CodeAlreadyCancelled}
)

func (e *Error) Error() string {
	msg := codeMessages[e.Code]
	if msg == "" {
		msg = string(e.Code)
	}
	if e.MeetingID != 0 {
		return fmt.Sprintf("meeting %d: %s", e.MeetingID, msg)
	}
	return msg
}

// Is matches on the error code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func newError(code ErrorCode, id MeetingID, who Identity) *Error {
	return &Error{Code: code, MeetingID: id, Identity: who}
}

// NotFound builds an ErrNotFound carrying the missing identifier.
func NotFound(id MeetingID) error {
	return newError(CodeNotFound, id, "")
}

// CodeOf extracts the error code from err, or "" when err is not a domain error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
