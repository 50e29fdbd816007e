package gateway

import "sync"

// RoomMap tracks which connections have joined which conversation rooms.
// A connection that joined a room receives full messages for it; the
// participant's other connections only get activity notifications.
type RoomMap struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client   // conversationId -> connId -> client
	byConn map[string]map[string]struct{} // connId -> conversationIds
}

// NewRoomMap creates a new RoomMap
func NewRoomMap() *RoomMap {
	return &RoomMap{
		rooms:  make(map[string]map[string]*Client),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds the client to the room. Joining twice is a no-op.
func (m *RoomMap) Join(conversationId string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[conversationId]
	if !ok {
		members = make(map[string]*Client)
		m.rooms[conversationId] = members
	}
	members[client.ConnId] = client

	joined, ok := m.byConn[client.ConnId]
	if !ok {
		joined = make(map[string]struct{})
		m.byConn[client.ConnId] = joined
	}
	joined[conversationId] = struct{}{}
}

// Leave removes the connection from the room. Leaving a room never joined is a no-op.
func (m *RoomMap) Leave(conversationId, connId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(conversationId, connId)
}

// LeaveAll removes the connection from every room it joined
func (m *RoomMap) LeaveAll(connId string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for conversationId := range m.byConn[connId] {
		m.leaveLocked(conversationId, connId)
	}
	delete(m.byConn, connId)
}

func (m *RoomMap) leaveLocked(conversationId, connId string) {
	if members, ok := m.rooms[conversationId]; ok {
		delete(members, connId)
		if len(members) == 0 {
			delete(m.rooms, conversationId)
		}
	}
	if joined, ok := m.byConn[connId]; ok {
		delete(joined, conversationId)
		if len(joined) == 0 {
			delete(m.byConn, connId)
		}
	}
}

// IsJoined reports whether the connection is in the room
func (m *RoomMap) IsJoined(conversationId, connId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.rooms[conversationId][connId]
	return ok
}

// Members returns a copy of the room's clients
func (m *RoomMap) Members(conversationId string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[conversationId]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// JoinedRooms returns the conversation ids the connection has joined
func (m *RoomMap) JoinedRooms(connId string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.byConn[connId]))
	for id := range m.byConn[connId] {
		ids = append(ids, id)
	}
	return ids
}
