package protocol

import "fmt"

// ErrorCode is the machine-readable part of an error reply.
type ErrorCode string

const (
	CodeNotYourTurn       ErrorCode = "notYourTurn"
	CodeNotOwner          ErrorCode = "notOwner"
	CodeInvalidObject     ErrorCode = "invalidObject"
	CodeIllegalMove       ErrorCode = "illegalMove"
	CodeInsufficientFunds ErrorCode = "insufficientFunds"
	CodeInvalidRequest    ErrorCode = "invalidRequest"
	CodeNotAllowed        ErrorCode = "notAllowed"
	CodeWrongPhase        ErrorCode = "wrongPhase"
	CodeInternal          ErrorCode = "internal"
)

// Error is the reply to a rejected request.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// NewError builds an error reply.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsError returns the reply as an error when it is an error reply.
func AsError(reply Message) error {
	if e, ok := reply.(*Error); ok {
		return e
	}
	return nil
}
