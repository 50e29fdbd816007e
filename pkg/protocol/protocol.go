// Package protocol defines the live-channel wire format shared by the gateway and the sdk.
package protocol

import "encoding/json"

// Request identifiers
const (
	WSGetNewestSeq      = 1001 // Get newest seq
	WSPullMsgBySeqList  = 1002 // Pull messages by seq list
	WSSendMsg           = 1003 // Send message
	WSPullMsg           = 1005 // Pull messages
	WSGetConvMaxReadSeq = 1006 // Get conversation max/read seq
	WSJoinRoom          = 1007 // Join a conversation room
	WSLeaveRoom         = 1008 // Leave a conversation room
)

// Push identifiers
const (
	WSPushMsg       = 2001 // Message delivered to a joined room
	WSKickOnlineMsg = 2002 // Kick user offline
	WSPushNotify    = 2003 // New activity in a conversation the connection has not joined
	WSDataError     = 3001 // Data error
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type
	MsgIncr       string `json:"msg_incr"`       // Client correlation id, echoed back
	OperationId   string `json:"operation_id"`   // Operation Id
	Token         string `json:"token"`          // JWT token (optional, used in handshake)
	SendId        string `json:"send_id"`        // Sender user Id
	Data          []byte `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response or push message
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string `json:"msg_incr"`       // Correlation id (echo back)
	OperationId   string `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int    `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string `json:"err_msg"`        // Error message
	Data          []byte `json:"data"`           // Response data
}

// SendMsgReq represents send message request data
type SendMsgReq struct {
	ClientMsgId    string `json:"client_msg_id"`
	ConversationId string `json:"conversation_id,omitempty"`
	RecvId         string `json:"recv_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
	ClientSendAt   int64  `json:"client_send_at,omitempty"`
}

// SendMsgResp is the ack for a sent message
type SendMsgResp struct {
	ServerMsgId    int64  `json:"server_msg_id"`
	ConversationId string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	ClientMsgId    string `json:"client_msg_id"`
	SendAt         int64  `json:"send_at"`
}

// RoomReq is the payload of join and leave requests
type RoomReq struct {
	ConversationId string `json:"conversation_id"`
}

// PullMsgReq represents pull messages request data
type PullMsgReq struct {
	ConversationId string  `json:"conversation_id"`
	BeginSeq       int64   `json:"begin_seq"`
	EndSeq         int64   `json:"end_seq"`
	Limit          int     `json:"limit"`
	SeqList        []int64 `json:"seq_list,omitempty"` // For WSPullMsgBySeqList
}

// PullMsgResp represents pull messages response data
type PullMsgResp struct {
	Messages []*MessageData `json:"messages"`
	MaxSeq   int64          `json:"max_seq"`
}

// MessageData is a persisted message on the wire
type MessageData struct {
	ServerMsgId    int64  `json:"server_msg_id"`
	ConversationId string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	ClientMsgId    string `json:"client_msg_id"`
	SenderId       string `json:"sender_id"`
	RecvId         string `json:"recv_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
	SendAt         int64  `json:"send_at"`
}

// GetNewestSeqReq represents get newest seq request
type GetNewestSeqReq struct {
	ConversationIds []string `json:"conversation_ids"`
}

// GetNewestSeqResp represents get newest seq response
type GetNewestSeqResp struct {
	Seqs map[string]int64 `json:"seqs"` // conversation_id -> max_seq
}

// GetConvMaxReadSeqReq represents get conversation max/read seq request
type GetConvMaxReadSeqReq struct {
	ConversationId string `json:"conversation_id"`
}

// GetConvMaxReadSeqResp represents get conversation max/read seq response
type GetConvMaxReadSeqResp struct {
	MaxSeq      int64 `json:"max_seq"`
	ReadSeq     int64 `json:"read_seq"`
	UnreadCount int64 `json:"unread_count"`
}

// PushMsgData represents push message data
type PushMsgData struct {
	Msgs map[string][]*MessageData `json:"msgs"` // conversation_id -> messages
}

// NotifyData announces activity in a conversation without carrying the full message.
type NotifyData struct {
	ConversationId string `json:"conversation_id"`
	ServerMsgId    int64  `json:"server_msg_id"`
	SenderId       string `json:"sender_id"`
	Preview        string `json:"preview"`
	Seq            int64  `json:"seq"`
	SendAt         int64  `json:"send_at"`
}

// Encode encodes data to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
