package sdk

import (
	"strings"
	"time"

	"github.com/mbeoliero/coachim/pkg/protocol"
)

// Counterpart is the other party of a conversation
type Counterpart struct {
	UserId   string
	Nickname string
	Role     string
	Avatar   string
}

// Conversation is one directory entry.
// Seq is the server seq of the last message reflected in the preview fields;
// an update carrying a lower or equal seq is already applied.
type Conversation struct {
	ConversationId   string
	Counterpart      Counterpart
	LastMessage      *string
	LastMessageTime  time.Time
	LastMessageLabel string
	UnreadCount      int64
	Seq              int64
}

// DeliveryState of a message in the history log
type DeliveryState int

const (
	StateOptimistic DeliveryState = iota
	StateConfirmed
	StateFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StateOptimistic:
		return "optimistic"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one entry of a conversation log. SentAt is a client estimate
// until the message is confirmed, and Seq is 0 until then.
type Message struct {
	ClientMsgId    string
	ConversationId string
	SenderId       string
	RecipientId    string
	Content        string
	SentAt         time.Time
	Seq            int64
	State          DeliveryState
}

// Activity is a preview update for the directory.
// PeerId is the counterpart, used when the conversation is not known yet.
type Activity struct {
	ConversationId string
	PeerId         string
	SenderId       string
	Preview        string
	OccurredAt     time.Time
	Seq            int64
}

// OutgoingMessage is what LiveChannel.Send puts on the wire
type OutgoingMessage struct {
	ClientMsgId    string
	ConversationId string
	SenderId       string
	RecipientId    string
	Content        string
	ClientSendAt   time.Time
}

// Ack is the gateway's answer to a send; ErrCode 0 means persisted
type Ack struct {
	ClientMsgId    string
	ErrCode        int
	ErrMsg         string
	ServerMsgId    int64
	ConversationId string
	Seq            int64
	SendAt         time.Time
}

// Failed reports whether the send was rejected
func (a *Ack) Failed() bool {
	return a.ErrCode != CodeSuccess
}

func unixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func previewOf(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= PreviewLength {
		return string(runes)
	}
	return string(runes[:PreviewLength])
}

// peerOf returns the other participant of a two-party conversation id
func peerOf(conversationId, userId string) string {
	rest, ok := strings.CutPrefix(conversationId, singleConversationPrefix)
	if !ok {
		return ""
	}
	a, b, ok := strings.Cut(rest, ":")
	if !ok {
		return ""
	}
	switch userId {
	case a:
		return b
	case b:
		return a
	default:
		return ""
	}
}

func conversationFromInfo(info *ConversationInfo, now time.Time) Conversation {
	conv := Conversation{
		ConversationId: info.ConversationId,
		Counterpart:    Counterpart{UserId: info.PeerUserId},
		UnreadCount:    info.UnreadCount,
		Seq:            info.MaxSeq,
	}
	if info.Peer != nil {
		conv.Counterpart.Nickname = info.Peer.Nickname
		conv.Counterpart.Role = info.Peer.Role
		conv.Counterpart.Avatar = info.Peer.Avatar
	}
	if info.LastMessage != nil {
		last := *info.LastMessage
		conv.LastMessage = &last
		conv.LastMessageTime = unixMilli(info.LastMessageAt)
		conv.LastMessageLabel = TimeLabel(conv.LastMessageTime, now)
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}
	return conv
}

func messageFromInfo(info *MessageInfo) Message {
	return Message{
		ClientMsgId:    info.ClientMsgId,
		ConversationId: info.ConversationId,
		SenderId:       info.SenderId,
		RecipientId:    info.RecvId,
		Content:        info.Content,
		SentAt:         unixMilli(info.SendAt),
		Seq:            info.Seq,
		State:          StateConfirmed,
	}
}

func messageFromData(data *protocol.MessageData) Message {
	return Message{
		ClientMsgId:    data.ClientMsgId,
		ConversationId: data.ConversationId,
		SenderId:       data.SenderId,
		RecipientId:    data.RecvId,
		Content:        data.Content,
		SentAt:         unixMilli(data.SendAt),
		Seq:            data.Seq,
		State:          StateConfirmed,
	}
}
