package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Kind is the error taxonomy shared by every endpoint
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation"
	KindTransient       Kind = "transient"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

var kindStatus = map[Kind]int{
	KindUnauthenticated: http.StatusUnauthorized,
	KindUnauthorized:    http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindValidation:      http.StatusBadRequest,
	KindTransient:       http.StatusServiceUnavailable,
	KindRateLimited:     http.StatusTooManyRequests,
	KindInternal:        http.StatusInternalServerError,
}

// Status returns the HTTP status for a kind
func (k Kind) Status() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeForbidden          = "FORBIDDEN"
	CodeNotHost            = "NOT_HOST"
	CodeProtectedTarget    = "PROTECTED_TARGET"
	CodeCannotTargetSelf   = "CANNOT_TARGET_SELF"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeRoomFull           = "ROOM_FULL"
	CodeRoomLocked         = "ROOM_LOCKED"
	CodeRoomExists         = "ROOM_EXISTS"
	CodeAlreadyInRoom      = "ALREADY_IN_ROOM"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeHostAlreadySet     = "HOST_ALREADY_SET"
	CodeTargetNotHost      = "TARGET_NOT_HOST"
	CodeCapacityBelowSize  = "CAPACITY_BELOW_SIZE"
	CodeBanned             = "BANNED"
	CodeAlreadyBanned      = "ALREADY_BANNED"
	CodeBanNotFound        = "BAN_NOT_FOUND"
	CodeMuted              = "MUTED"
	CodeKnockNotFound      = "KNOCK_NOT_FOUND"
	CodeKnockPending       = "KNOCK_PENDING"
	CodeKnockResolved      = "KNOCK_RESOLVED"
	CodeKnockNotNeeded     = "KNOCK_NOT_NEEDED"
	CodeSpawnNotFound      = "SPAWN_NOT_FOUND"
	CodeSpawnActive        = "SPAWN_ACTIVE"
	CodeSpawnClaimed       = "SPAWN_CLAIMED"
	CodeSpawnKind          = "SPAWN_KIND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeValidation         = "VALIDATION_FAILED"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Error is an error with a fixed kind, code and client-safe message
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// Error implements error interface
func (e *Error) Error() string {
	return e.Message
}

type mapping struct {
	err  error
	kind Kind
	code string
}

// mappings is checked in order with errors.Is; the first match wins
var mappings = []mapping{
	{model.ErrUnauthenticated, KindUnauthenticated, CodeUnauthenticated},
	{model.ErrSessionNotFound, KindUnauthenticated, CodeUnauthenticated},
	{model.ErrSessionExpired, KindUnauthenticated, CodeSessionExpired},
	{model.ErrInvalidCredentials, KindUnauthenticated, CodeInvalidCredentials},

	{model.ErrForbidden, KindUnauthorized, CodeForbidden},
	{model.ErrNotHost, KindUnauthorized, CodeNotHost},
	{model.ErrProtectedTarget, KindUnauthorized, CodeProtectedTarget},
	{model.ErrBanned, KindUnauthorized, CodeBanned},
	{model.ErrMuted, KindUnauthorized, CodeMuted},
	{model.ErrRoomLocked, KindUnauthorized, CodeRoomLocked},

	{model.ErrUserNotFound, KindNotFound, CodeUserNotFound},
	{model.ErrCredentialsNotFound, KindNotFound, CodeUserNotFound},
	{model.ErrRoomNotFound, KindNotFound, CodeRoomNotFound},
	{model.ErrNotInRoom, KindNotFound, CodeNotInRoom},
	{model.ErrBanNotFound, KindNotFound, CodeBanNotFound},
	{model.ErrKnockNotFound, KindNotFound, CodeKnockNotFound},
	{model.ErrSpawnNotFound, KindNotFound, CodeSpawnNotFound},

	{model.ErrUsernameTaken, KindConflict, CodeUsernameTaken},
	{model.ErrRoomExists, KindConflict, CodeRoomExists},
	{model.ErrRoomFull, KindConflict, CodeRoomFull},
	{model.ErrAlreadyInRoom, KindConflict, CodeAlreadyInRoom},
	{model.ErrHostAlreadySet, KindConflict, CodeHostAlreadySet},
	{model.ErrTargetNotHost, KindConflict, CodeTargetNotHost},
	{model.ErrCapacityBelowSize, KindConflict, CodeCapacityBelowSize},
	{model.ErrAlreadyBanned, KindConflict, CodeAlreadyBanned},
	{model.ErrKnockPending, KindConflict, CodeKnockPending},
	{model.ErrKnockResolved, KindConflict, CodeKnockResolved},
	{model.ErrKnockNotNeeded, KindConflict, CodeKnockNotNeeded},
	{model.ErrSpawnActive, KindConflict, CodeSpawnActive},
	{model.ErrSpawnClaimed, KindConflict, CodeSpawnClaimed},

	{model.ErrInvalidDisplayName, KindValidation, CodeValidation},
	{model.ErrInvalidColor, KindValidation, CodeValidation},
	{model.ErrInvalidAvatar, KindValidation, CodeValidation},
	{model.ErrInvalidUsername, KindValidation, CodeValidation},
	{model.ErrInvalidPassword, KindValidation, CodeValidation},
	{model.ErrInvalidRoomName, KindValidation, CodeValidation},
	{model.ErrInvalidCapacity, KindValidation, CodeValidation},
	{model.ErrInvalidSettings, KindValidation, CodeValidation},
	{model.ErrCannotTargetSelf, KindValidation, CodeCannotTargetSelf},
	{model.ErrEmptyMessage, KindValidation, CodeValidation},
	{model.ErrMessageTooLong, KindValidation, CodeValidation},
	{model.ErrSpawnKind, KindValidation, CodeSpawnKind},

	{model.ErrRateLimited, KindRateLimited, CodeRateLimited},
	{storage.ErrUnavailable, KindTransient, CodeUnavailable},
}

// Classify maps err onto the taxonomy. Unknown errors are internal and never
// expose their text.
func Classify(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			msg := m.err.Error()
			if m.kind == KindTransient {
				msg = "service temporarily unavailable"
			}
			return &Error{Kind: m.kind, Code: m.code, Message: msg}
		}
	}
	return &Error{Kind: KindInternal, Code: CodeInternalError, Message: "internal server error"}
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	e := Classify(err)
	if e.Kind == KindRateLimited {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
	})
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: message}
}

// NewUnauthenticatedError creates an authentication required error
func NewUnauthenticatedError() error {
	return &Error{Kind: KindUnauthenticated, Code: CodeUnauthenticated, Message: "authentication required"}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &Error{Kind: KindInternal, Code: CodeInternalError, Message: "internal server error"}
}
