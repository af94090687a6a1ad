package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Codes for failures that happen before the domain is reached
const (
	codeInvalidJSON    domain.Code = "INVALID_JSON"
	codeInvalidRequest domain.Code = "INVALID_REQUEST"
	codeInternal       domain.Code = "INTERNAL"
)

type errorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error errorBody    `json:"error"`
	Room  *domain.Room `json:"room,omitempty"`
}

// statusOf maps an error kind to its HTTP status
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrUnresolvedAssignment:
		return http.StatusUnprocessableEntity
	case domain.ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageOf returns a client-safe message. Transient and unknown errors never
// leak their cause.
func messageOf(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		if domain.KindOf(err) == domain.ErrTransient {
			return "service temporarily unavailable"
		}
		return de.Msg
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorWithRoom(w, err, nil)
}

func writeErrorWithRoom(w http.ResponseWriter, err error, room *domain.Room) {
	code := domain.CodeOf(err)
	if code == domain.CodeUnknown {
		code = codeInternal
	}
	writeJSON(w, statusOf(err), errorResponse{
		Error: errorBody{Code: code, Message: messageOf(err)},
		Room:  room,
	})
}

func writeBadRequest(w http.ResponseWriter, code domain.Code, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Code: code, Message: msg}})
}
