package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbeoliero/coachim/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenSingleConversationId generates conversation Id for a two-party chat
// Format: si_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator because role-tagged user ids contain "_"
func GenSingleConversationId(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.SingleConversationPrefix, users[0], users[1])
}

// IsSingleConversation checks if conversation Id is for a two-party chat
func IsSingleConversation(conversationId string) bool {
	return len(conversationId) > len(constant.SingleConversationPrefix) &&
		strings.HasPrefix(conversationId, constant.SingleConversationPrefix)
}

// ParticipantsOf splits a two-party conversation id into its user ids.
func ParticipantsOf(conversationId string) (string, string, bool) {
	if !IsSingleConversation(conversationId) {
		return "", "", false
	}
	a, b, ok := strings.Cut(conversationId[len(constant.SingleConversationPrefix):], ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// IsParticipant reports whether userId is one of the two parties of conversationId.
func IsParticipant(conversationId, userId string) bool {
	a, b, ok := ParticipantsOf(conversationId)
	return ok && (userId == a || userId == b)
}

// PeerOf returns the other party of a two-party conversation.
func PeerOf(conversationId, userId string) (string, bool) {
	a, b, ok := ParticipantsOf(conversationId)
	switch {
	case !ok:
		return "", false
	case userId == a:
		return b, true
	case userId == b:
		return a, true
	}
	return "", false
}
