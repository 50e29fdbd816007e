package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Wrap(t *testing.T) {
	wrapped := ErrSeqAllocFailed.Wrap(errors.New("redis down"))
	assert.Equal(t, ErrSeqAllocFailed.Code, wrapped.Code)
	assert.Equal(t, "seq allocation failed: redis down", wrapped.Msg)

	assert.Same(t, ErrSeqAllocFailed, ErrSeqAllocFailed.Wrap(nil))
}

func TestError_IsMatchesCode(t *testing.T) {
	wrapped := ErrTokenInvalid.Wrap(errors.New("expired"))
	assert.True(t, errors.Is(wrapped, ErrTokenInvalid))
	assert.False(t, errors.Is(wrapped, ErrTokenMissing))

	chained := fmt.Errorf("handshake: %w", wrapped)
	assert.True(t, errors.Is(chained, ErrTokenInvalid))
}

func TestAs(t *testing.T) {
	assert.Equal(t, ErrConvNotFound, As(fmt.Errorf("lookup: %w", ErrConvNotFound)))
	assert.Equal(t, ErrInternalServer, As(errors.New("boom")))
}
