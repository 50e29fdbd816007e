package constant

// Session types
const (
	SessionTypeSingle = 1 // Two-party chat
)

// Message types
const (
	MsgTypeText = 1
)

// Online status
const (
	StatusOffline = 0
	StatusOnline  = 1
)

// Receive message options
const (
	RecvMsgOptNormal   = 0 // Normal receive
	RecvMsgOptNoNotify = 1 // No notification
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

// Conversation Id prefix
const (
	SingleConversationPrefix = "si_"
)

// Message limits
const (
	MaxContentLength   = 4000
	PreviewLength      = 80
	DefaultHistorySize = 50
	MaxPullSize        = 100
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyToken           = "token:%s:%d" // token:{user_id}:{platform_id}
	redisKeyOnline          = "online:%s"   // online:{user_id}
	redisKeySeqConversation = "seq:conv:%s" // seq:conv:{conversation_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "coachim:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyToken() string           { return redisKeyPrefix + redisKeyToken }
func RedisKeyOnline() string          { return redisKeyPrefix + redisKeyOnline }
func RedisKeySeqConversation() string { return redisKeyPrefix + redisKeySeqConversation }
