package sdk

import "time"

// Message types
const (
	MsgTypeText = 1
)

// Receive message options
const (
	RecvMsgOptNormal   = 0 // Normal receive
	RecvMsgOptNoNotify = 1 // No notification
)

// Roles
const (
	RoleClient     = "client"
	RoleInstructor = "instructor"
	RoleDietician  = "dietician"
	RoleAdmin      = "admin"
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Client core defaults
const (
	DefaultHistoryLimit = 50
	PreviewLength       = 80
	SDKType             = "go"

	singleConversationPrefix = "si_"
)

// Live channel defaults, matching the gateway's
const (
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 30 * time.Second
	DefaultPingPeriod     = (DefaultPongWait * 9) / 10
	DefaultMaxMessageSize = 51200
	DefaultBackoffMin     = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
)
