package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UserInfo represents public user info
type UserInfo struct {
	Id        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Avatar    string  `json:"avatar"`
	Role      string  `json:"role"`
	Extra     *string `json:"extra,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// MessageInfo represents message info
type MessageInfo struct {
	Id             int64  `json:"id"`
	ConversationId string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	ClientMsgId    string `json:"client_msg_id"`
	SenderId       string `json:"sender_id"`
	RecvId         string `json:"recv_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
	SendAt         int64  `json:"send_at"`
}

// ConversationInfo represents one row of the conversation list
type ConversationInfo struct {
	ConversationId string    `json:"conversation_id"`
	PeerUserId     string    `json:"peer_user_id"`
	Peer           *UserInfo `json:"peer,omitempty"`
	LastMessage    *string   `json:"last_message"`
	LastMessageAt  int64     `json:"last_message_at"`
	LastSenderId   string    `json:"last_sender_id,omitempty"`
	RecvMsgOpt     int32     `json:"recv_msg_opt"`
	IsPinned       bool      `json:"is_pinned"`
	UnreadCount    int64     `json:"unread_count"`
	MaxSeq         int64     `json:"max_seq"`
	ReadSeq        int64     `json:"read_seq"`
	UpdatedAt      int64     `json:"updated_at"`
}

// ===== Request types =====

// RegisterRequest registers a platform member under a role
type RegisterRequest struct {
	ExternalId int64  `json:"external_id"`
	Role       string `json:"role"`
	Nickname   string `json:"nickname"`
	Password   string `json:"password"`
	Avatar     string `json:"avatar,omitempty"`
}

// LoginRequest
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string    `json:"token"`
	UserInfo *UserInfo `json:"user_info"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ClientMsgId    string `json:"client_msg_id"`
	ConversationId string `json:"conversation_id,omitempty"`
	RecvId         string `json:"recv_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
}

// PullMessagesResponse is returned by both the range pull and the history fetch
type PullMessagesResponse struct {
	Messages []*MessageInfo `json:"messages"`
	MaxSeq   int64          `json:"max_seq"`
}

// UpdateConversationRequest represents update conversation request
type UpdateConversationRequest struct {
	RecvMsgOpt *int32 `json:"recv_msg_opt,omitempty"`
	IsPinned   *bool  `json:"is_pinned,omitempty"`
}

// MarkReadRequest represents mark read request; ReadSeq 0 marks everything read
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	ReadSeq        int64  `json:"read_seq"`
}

// MarkReadResponse carries the read seq the server settled on
type MarkReadResponse struct {
	ConversationId string `json:"conversation_id"`
	ReadSeq        int64  `json:"read_seq"`
}

// StartConversationRequest represents start conversation request
type StartConversationRequest struct {
	PeerUserId string `json:"peer_user_id"`
}

// MaxReadSeqResponse represents max and read seq response
type MaxReadSeqResponse struct {
	MaxSeq      int64 `json:"max_seq"`
	ReadSeq     int64 `json:"read_seq"`
	UnreadCount int64 `json:"unread_count"`
}

// MaxSeqResponse represents max seq response
type MaxSeqResponse struct {
	MaxSeq int64 `json:"max_seq"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}
