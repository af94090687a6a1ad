package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrTransient            = errors.New("transient failure")
	ErrUnresolvedAssignment = errors.New("unresolved assignment")
)

// Code is a machine-readable error code
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeRoomNotFound          Code = "ROOM_NOT_FOUND"
	CodeParticipantNotFound   Code = "PARTICIPANT_NOT_FOUND"
	CodeInvalidRoomID         Code = "INVALID_ROOM_ID"
	CodeNameRequired          Code = "NAME_REQUIRED"
	CodeWishRequired          Code = "WISH_REQUIRED"
	CodeNameTooLong           Code = "NAME_TOO_LONG"
	CodeWishTooLong           Code = "WISH_TOO_LONG"
	CodeNotEnoughParticipants Code = "NOT_ENOUGH_PARTICIPANTS"
	CodeDuplicateParticipant  Code = "DUPLICATE_PARTICIPANT"
	CodeInvalidAssignment     Code = "INVALID_ASSIGNMENT"
	CodeRoomNotMatched        Code = "ROOM_NOT_MATCHED"
	CodeRoomNotCollecting     Code = "ROOM_NOT_COLLECTING"
	CodeRoomIDTaken           Code = "ROOM_ID_TAKEN"
	CodeMatchConflict         Code = "MATCH_CONFLICT"
	CodeWriteConflict         Code = "WRITE_CONFLICT"
	CodeCreatorTokenInvalid   Code = "CREATOR_TOKEN_INVALID"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeAssignmentUnresolved  Code = "ASSIGNMENT_UNRESOLVED"
)

// Error is a domain error carrying its kind, code and optional cause
type Error struct {
	Kind error
	Code Code
	Msg  string
	Err  error
}

// NewError creates a domain error of the given kind
func NewError(kind error, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var (
	ErrRoomNotFound          = NewError(ErrNotFound, CodeRoomNotFound, "room not found")
	ErrParticipantNotFound   = NewError(ErrNotFound, CodeParticipantNotFound, "participant not found")
	ErrInvalidRoomID         = NewError(ErrValidation, CodeInvalidRoomID, "invalid room id")
	ErrNameRequired          = NewError(ErrValidation, CodeNameRequired, "name is required")
	ErrWishRequired          = NewError(ErrValidation, CodeWishRequired, "wish is required")
	ErrNameTooLong           = NewError(ErrValidation, CodeNameTooLong, fmt.Sprintf("name exceeds %d characters", MaxNameLength))
	ErrWishTooLong           = NewError(ErrValidation, CodeWishTooLong, fmt.Sprintf("wish exceeds %d characters", MaxWishLength))
	ErrNotEnoughParticipants = NewError(ErrValidation, CodeNotEnoughParticipants, fmt.Sprintf("at least %d participants are required", MinParticipants))
	ErrDuplicateParticipant  = NewError(ErrValidation, CodeDuplicateParticipant, "duplicate participant id")
	ErrInvalidAssignment     = NewError(ErrValidation, CodeInvalidAssignment, "assignment is not a single-cycle derangement")
	ErrRoomNotMatched        = NewError(ErrValidation, CodeRoomNotMatched, "room has not been matched yet")
	ErrCreatorTokenInvalid   = NewError(ErrForbidden, CodeCreatorTokenInvalid, "only the room creator may start matching")
	ErrRoomNotCollecting     = NewError(ErrConflict, CodeRoomNotCollecting, "room is no longer collecting participants")
	ErrRoomIDTaken           = NewError(ErrConflict, CodeRoomIDTaken, "room id already exists")
	ErrMatchConflict         = NewError(ErrConflict, CodeMatchConflict, "room changed while matching")
	ErrWriteConflict         = NewError(ErrConflict, CodeWriteConflict, "concurrent write to room")
	ErrAssignmentUnresolved  = NewError(ErrUnresolvedAssignment, CodeAssignmentUnresolved, "assignment does not resolve to a current participant")
)

// Transient wraps an infrastructure failure (store, broker, network)
func Transient(op string, err error) error {
	return &Error{Kind: ErrTransient, Code: CodeStoreUnavailable, Msg: op, Err: err}
}

// CodeOf returns the machine code carried by err, or CodeUnknown
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// KindOf returns the error kind sentinel wrapped by err, or nil
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrForbidden, ErrConflict, ErrUnresolvedAssignment, ErrTransient} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
