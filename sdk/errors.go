package sdk

import (
	"errors"
	"fmt"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeUnauthorized    = 1003
	CodeForbidden       = 1004
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006
	CodeNoPermission    = 1007

	// Auth errors (2xxx)
	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004
	CodeLoginFailed   = 2005
	CodeUserNotFound  = 2006
	CodeUserExists    = 2007
	CodePasswordWrong = 2008
	CodeRoleInvalid   = 2009

	// Conversation errors (3xxx)
	CodeConvNotFound   = 3001
	CodeCannotChatSelf = 3002
	CodeNotParticipant = 3003
	CodeRoomNotJoined  = 3004

	// Message errors (4xxx)
	CodeMessageNotFound  = 4001
	CodeMessageDuplicate = 4002
	CodeMessageEmpty     = 4003
	CodeSeqAllocFailed   = 4004
	CodeSendFailed       = 4005
	CodePullFailed       = 4006

	// WebSocket errors (5xxx)
	CodeConnOverLimit   = 5001
	CodeConnClosed      = 5002
	CodeInvalidProtocol = 5003
	CodePushFailed      = 5004
)

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer  = NewError(CodeInternalServer, "internal server error")
	ErrUnauthorized    = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden       = NewError(CodeForbidden, "forbidden")
	ErrNotFound        = NewError(CodeNotFound, "not found")
	ErrTooManyRequests = NewError(CodeTooManyRequests, "too many requests")
	ErrNoPermission    = NewError(CodeNoPermission, "no permission to access this resource")

	ErrTokenInvalid  = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired  = NewError(CodeTokenExpired, "token expired")
	ErrTokenMissing  = NewError(CodeTokenMissing, "token missing")
	ErrUserNotFound  = NewError(CodeUserNotFound, "user not found")
	ErrUserExists    = NewError(CodeUserExists, "user already exists")
	ErrPasswordWrong = NewError(CodePasswordWrong, "password wrong")

	ErrConvNotFound   = NewError(CodeConvNotFound, "conversation not found")
	ErrCannotChatSelf = NewError(CodeCannotChatSelf, "cannot start a conversation with yourself")
	ErrNotParticipant = NewError(CodeNotParticipant, "not a conversation participant")
	ErrMessageEmpty   = NewError(CodeMessageEmpty, "message content empty")
)

// Client-side errors
var (
	// ErrNotConnected is returned by LiveChannel.Send while the channel has no connection
	ErrNotConnected = errors.New("live channel not connected")
	// ErrChannelClosed is returned once the live channel was closed or kicked
	ErrChannelClosed = errors.New("live channel closed")
	// ErrNoActiveConversation is returned by Session.Send when nothing is open
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrStaleHistory is returned when a history load lands after its conversation was left
	ErrStaleHistory = errors.New("history load discarded: conversation no longer active")
)
