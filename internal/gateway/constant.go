package gateway

import "time"

// WebSocket message types
const (
	MessageText   = 1
	MessageBinary = 2
)

// Fallback timeouts, used when the websocket config leaves them unset
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)

// SDK types
const (
	SDKTypeGo = "go"
	SDKTypeJS = "js"
)
