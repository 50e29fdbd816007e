package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnreadCount(t *testing.T) {
	assert.Equal(t, int64(3), UnreadCount(10, 7))
	assert.Equal(t, int64(0), UnreadCount(7, 7))
	assert.Equal(t, int64(0), UnreadCount(5, 9))
}

func TestClampReadSeq(t *testing.T) {
	assert.Equal(t, int64(12), ClampReadSeq(0, 12))
	assert.Equal(t, int64(12), ClampReadSeq(40, 12))
	assert.Equal(t, int64(4), ClampReadSeq(4, 12))
}

func TestSeqUser_ClampSeqRange(t *testing.T) {
	var none *SeqUser
	b, e := none.ClampSeqRange(0, 0, 20)
	assert.Equal(t, int64(1), b)
	assert.Equal(t, int64(20), e)

	su := &SeqUser{MinSeq: 5}
	b, e = su.ClampSeqRange(2, 50, 20)
	assert.Equal(t, int64(5), b)
	assert.Equal(t, int64(20), e)
}
