package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomMap_JoinLeave(t *testing.T) {
	m := NewRoomMap()
	c1 := &Client{ConnId: "c1", UserId: "cl__1"}
	c2 := &Client{ConnId: "c2", UserId: "in__2"}

	m.Join("conv-a", c1)
	m.Join("conv-a", c1)
	m.Join("conv-a", c2)
	m.Join("conv-b", c1)

	assert.True(t, m.IsJoined("conv-a", "c1"))
	assert.Len(t, m.Members("conv-a"), 2)
	assert.ElementsMatch(t, []string{"conv-a", "conv-b"}, m.JoinedRooms("c1"))

	m.Leave("conv-a", "c1")
	assert.False(t, m.IsJoined("conv-a", "c1"))
	assert.True(t, m.IsJoined("conv-b", "c1"))
	assert.Len(t, m.Members("conv-a"), 1)

	// leaving twice is harmless
	m.Leave("conv-a", "c1")
	m.Leave("conv-missing", "c1")
	assert.Len(t, m.Members("conv-a"), 1)
}

func TestRoomMap_LeaveAll(t *testing.T) {
	m := NewRoomMap()
	c1 := &Client{ConnId: "c1"}
	m.Join("conv-a", c1)
	m.Join("conv-b", c1)

	m.LeaveAll("c1")

	assert.False(t, m.IsJoined("conv-a", "c1"))
	assert.False(t, m.IsJoined("conv-b", "c1"))
	assert.Empty(t, m.JoinedRooms("c1"))
	assert.Empty(t, m.Members("conv-a"))
}
