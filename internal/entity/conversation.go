package entity

// Conversation is one participant's view of a two-party conversation.
// Each conversation has two rows, one per owner.
type Conversation struct {
	Id             int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string  `json:"conversation_id" gorm:"column:conversation_id;type:varchar(160);uniqueIndex:uk_owner_conv,priority:2"`
	OwnerId        string  `json:"owner_id" gorm:"column:owner_id;type:varchar(64);uniqueIndex:uk_owner_conv,priority:1"`
	PeerUserId     string  `json:"peer_user_id" gorm:"column:peer_user_id;type:varchar(64)"`
	RecvMsgOpt     int32   `json:"recv_msg_opt" gorm:"column:recv_msg_opt"`
	IsPinned       bool    `json:"is_pinned" gorm:"column:is_pinned"`
	Extra          *string `json:"extra" gorm:"column:extra;type:json"`
	CreatedAt      int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationInfo represents conversation info for API response
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

// ConversationWithSeq represents conversation with seq info
type ConversationWithSeq struct {
	Conversation
	MaxSeq      int64 `json:"max_seq"`
	ReadSeq     int64 `json:"read_seq"`
	UnreadCount int64 `json:"unread_count"`
}

// ToConversationInfo builds the list row. peer and last may be nil.
func (c *ConversationWithSeq) ToConversationInfo(peer *User, last *Message) *ConversationInfo {
	info := &ConversationInfo{
		ConversationId: c.ConversationId,
		PeerUserId:     c.PeerUserId,
		RecvMsgOpt:     c.RecvMsgOpt,
		IsPinned:       c.IsPinned,
		UnreadCount:    c.UnreadCount,
		MaxSeq:         c.MaxSeq,
		ReadSeq:        c.ReadSeq,
		UpdatedAt:      c.UpdatedAt,
	}
	if peer != nil {
		info.Peer = peer.ToUserInfo()
	}
	if last != nil {
		preview := last.Preview()
		info.LastMessage = &preview
		info.LastMessageAt = last.SendAt
		info.LastSenderId = last.SenderId
	}
	return info
}
