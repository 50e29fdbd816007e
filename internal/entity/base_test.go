package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenSingleConversationId_Symmetric(t *testing.T) {
	a := GenSingleConversationId("in__3", "cl__12")
	b := GenSingleConversationId("cl__12", "in__3")
	assert.Equal(t, a, b)
	assert.Equal(t, "si_cl__12:in__3", a)
}

func TestParticipantsOf(t *testing.T) {
	a, b, ok := ParticipantsOf("si_cl__12:in__3")
	assert.True(t, ok)
	assert.Equal(t, "cl__12", a)
	assert.Equal(t, "in__3", b)

	_, _, ok = ParticipantsOf("sg_group")
	assert.False(t, ok)
	_, _, ok = ParticipantsOf("si_cl__12")
	assert.False(t, ok)
}

func TestPeerOf(t *testing.T) {
	conv := GenSingleConversationId("cl__1", "di__2")

	peer, ok := PeerOf(conv, "cl__1")
	assert.True(t, ok)
	assert.Equal(t, "di__2", peer)

	peer, ok = PeerOf(conv, "di__2")
	assert.True(t, ok)
	assert.Equal(t, "cl__1", peer)

	_, ok = PeerOf(conv, "in__9")
	assert.False(t, ok)
	assert.False(t, IsParticipant(conv, "in__9"))
	assert.True(t, IsParticipant(conv, "di__2"))
}
