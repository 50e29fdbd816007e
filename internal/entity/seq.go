package entity

// SeqConversation represents conversation sequence info
type SeqConversation struct {
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;type:varchar(160);primaryKey"`
	MaxSeq         int64  `json:"max_seq" gorm:"column:max_seq"`
	MinSeq         int64  `json:"min_seq" gorm:"column:min_seq"`
}

// TableName returns the table name for SeqConversation
func (SeqConversation) TableName() string {
	return "seq_conversations"
}

// SeqUser represents a participant's read position in a conversation
type SeqUser struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId         string `json:"user_id" gorm:"column:user_id;type:varchar(64);uniqueIndex:uk_user_conv,priority:1"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;type:varchar(160);uniqueIndex:uk_user_conv,priority:2"`
	MinSeq         int64  `json:"min_seq" gorm:"column:min_seq"`
	ReadSeq        int64  `json:"read_seq" gorm:"column:read_seq"`
}

// TableName returns the table name for SeqUser
func (SeqUser) TableName() string {
	return "seq_users"
}

// UnreadCount is max_seq - read_seq, never negative.
func UnreadCount(maxSeq, readSeq int64) int64 {
	if maxSeq <= readSeq {
		return 0
	}
	return maxSeq - readSeq
}

// ClampReadSeq resolves a mark-read request: 0 means "everything", and the result never exceeds maxSeq.
func ClampReadSeq(requested, maxSeq int64) int64 {
	if requested <= 0 || requested > maxSeq {
		return maxSeq
	}
	return requested
}

// ClampSeqRange clamps the requested seq range to [minSeq, convMaxSeq]
func (s *SeqUser) ClampSeqRange(beginSeq, endSeq, convMaxSeq int64) (int64, int64) {
	minVisible := int64(1)
	if s != nil && s.MinSeq > minVisible {
		minVisible = s.MinSeq
	}
	if beginSeq < minVisible {
		beginSeq = minVisible
	}
	if endSeq <= 0 || endSeq > convMaxSeq {
		endSeq = convMaxSeq
	}
	return beginSeq, endSeq
}
