package core

import "errors"

// Error is a module precondition failure. The runner reports it to the
// client as {"message":"error","error":Code} and keeps the session alive.
type Error struct {
	Code string
}

func NewError(code string) *Error { return &Error{Code: code} }

func (e *Error) Error() string { return e.Code }

// AsError extracts a client-facing error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

var (
	ErrInsufficientPermissions = NewError("insufficient_permissions")
	ErrInvalidJSON             = NewError("invalid_json")
	ErrInvalidAction           = NewError("invalid_action")
	ErrStorageExceeded         = NewError("storage_exceeded")
	ErrInternal                = NewError("internal")
)

// ErrorMessage is the wire form of an Error.
type ErrorMessage struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func ErrorPayload(e *Error) ErrorMessage {
	return ErrorMessage{Message: "error", Error: e.Code}
}
