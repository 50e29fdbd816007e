package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coachim/pkg/constant"
)

const onlineTTL = 60 * time.Second

// UserMap manages user connections
type UserMap struct {
	mu    sync.RWMutex
	users map[string]*UserPlatform // userId -> UserPlatform
	rdb   *redis.Client
}

// UserPlatform holds all connections for a user
type UserPlatform struct {
	Clients []*Client
	Time    time.Time
}

// NewUserMap creates a new UserMap. rdb may be nil, in which case online status is local only.
func NewUserMap(rdb *redis.Client) *UserMap {
	return &UserMap{
		users: make(map[string]*UserPlatform),
		rdb:   rdb,
	}
}

// Register registers a client
func (m *UserMap) Register(ctx context.Context, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		userPlatform = &UserPlatform{
			Clients: make([]*Client, 0, 4),
		}
		m.users[client.UserId] = userPlatform
	}

	userPlatform.Clients = append(userPlatform.Clients, client)
	userPlatform.Time = time.Now()

	m.setOnline(ctx, client.UserId)
}

// Unregister removes a client and reports whether the user has no connections left
func (m *UserMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		return false
	}

	remaining := make([]*Client, 0, len(userPlatform.Clients))
	for _, c := range userPlatform.Clients {
		if c.ConnId != client.ConnId {
			remaining = append(remaining, c)
		}
	}
	userPlatform.Clients = remaining

	if len(userPlatform.Clients) == 0 {
		delete(m.users, client.UserId)
		m.setOffline(ctx, client.UserId)
		return true
	}

	return false
}

// GetAll gets all clients for a user
func (m *UserMap) GetAll(userId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	clients := make([]*Client, len(userPlatform.Clients))
	copy(clients, userPlatform.Clients)
	return clients, true
}

// GetByPlatform gets clients for a specific platform
func (m *UserMap) GetByPlatform(userId string, platformId int) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	var clients []*Client
	for _, c := range userPlatform.Clients {
		if c.PlatformId == platformId {
			clients = append(clients, c)
		}
	}
	return clients, len(clients) > 0
}

// HasConnection checks if user has any connection on this instance
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	return exists && len(userPlatform.Clients) > 0
}

func (m *UserMap) setOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Set(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId), "1", onlineTTL)
}

func (m *UserMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Del(ctx, fmt.Sprintf(constant.RedisKeyOnline(), userId))
}
