package gateway

import (
	"errors"

	"github.com/mbeoliero/coachim/pkg/errcode"
)

// Gateway errors. Those sent back to clients carry an errcode so the
// sdk can tell them apart.
var (
	ErrConnClosed       = errcode.ErrConnClosed
	ErrInvalidProtocol  = errcode.ErrInvalidProtocol
	ErrUserIdMismatch   = errcode.ErrTokenMismatch
	ErrWriteChannelFull = errors.New("write channel full")
	ErrPanic            = errors.New("panic error")
)
