package entity

import (
	"unicode/utf8"

	"github.com/mbeoliero/coachim/pkg/constant"
)

// Message is one persisted text message. Id comes from the snowflake generator.
type Message struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;type:varchar(160);uniqueIndex:uk_conv_seq,priority:1"`
	Seq            int64  `json:"seq" gorm:"column:seq;uniqueIndex:uk_conv_seq,priority:2"`
	ClientMsgId    string `json:"client_msg_id" gorm:"column:client_msg_id;type:varchar(64);uniqueIndex:uk_sender_client_msg,priority:2"`
	SenderId       string `json:"sender_id" gorm:"column:sender_id;type:varchar(64);uniqueIndex:uk_sender_client_msg,priority:1"`
	RecvId         string `json:"recv_id" gorm:"column:recv_id;type:varchar(64)"`
	MsgType        int32  `json:"msg_type" gorm:"column:msg_type"`
	Content        string `json:"content" gorm:"column:content;type:text"`
	SendAt         int64  `json:"send_at" gorm:"column:send_at"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Preview returns the content truncated for list rows and notifications.
func (m *Message) Preview() string {
	return Truncate(m.Content, constant.PreviewLength)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// MessageInfo represents message info for API response
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

// ToMessageInfo converts Message to MessageInfo
func (m *Message) ToMessageInfo() *MessageInfo {
	return &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		Seq:            m.Seq,
		ClientMsgId:    m.ClientMsgId,
		SenderId:       m.SenderId,
		RecvId:         m.RecvId,
		MsgType:        m.MsgType,
		Content:        m.Content,
		SendAt:         m.SendAt,
	}
}
