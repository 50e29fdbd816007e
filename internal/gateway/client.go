package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/protocol"
)

// ClientConn represents a WebSocket connection wrapper
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Client represents a connected WebSocket client
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	UserId     string
	Role       string
	PlatformId int
	SDKType    string
	Token      string
	ConnId     string
	server     *WsServer
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId, role string, platformId int, sdkType, token, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		Role:       role,
		PlatformId: platformId,
		SDKType:    sdkType,
		Token:      token,
		ConnId:     connId,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// readLoop continuously reads messages from the connection until it fails
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage dispatches one request and writes its reply. The returned error is a write failure.
func (c *Client) handleMessage(message []byte) error {
	var req protocol.WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.reply(&req, ErrInvalidProtocol, nil)
	}

	if req.SendId != "" && req.SendId != c.UserId {
		return c.reply(&req, ErrUserIdMismatch, nil)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s, conn_id=%s", req.ReqIdentifier, c.UserId, c.ConnId)

	var resp []byte
	var err error

	switch req.ReqIdentifier {
	case protocol.WSGetNewestSeq:
		resp, err = c.server.HandleGetNewestSeq(c.ctx, c, &req)
	case protocol.WSSendMsg:
		resp, err = c.server.HandleSendMsg(c.ctx, c, &req)
	case protocol.WSPullMsgBySeqList:
		resp, err = c.server.HandlePullMsgBySeqList(c.ctx, c, &req)
	case protocol.WSPullMsg:
		resp, err = c.server.HandlePullMsg(c.ctx, c, &req)
	case protocol.WSGetConvMaxReadSeq:
		resp, err = c.server.HandleGetConvMaxReadSeq(c.ctx, c, &req)
	case protocol.WSJoinRoom:
		resp, err = c.server.HandleJoinRoom(c.ctx, c, &req)
	case protocol.WSLeaveRoom:
		resp, err = c.server.HandleLeaveRoom(c.ctx, c, &req)
	default:
		err = ErrInvalidProtocol
	}

	return c.reply(&req, err, resp)
}

// reply echoes the request's identifiers so the client can correlate the ack
func (c *Client) reply(req *protocol.WSRequest, err error, data []byte) error {
	resp := protocol.WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}

	if err != nil {
		e := errcode.As(err)
		resp.ErrCode = e.Code
		resp.ErrMsg = e.Msg
		resp.Data = nil
	}

	return c.writeResponse(resp)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp protocol.WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// PushMessage delivers a full message to a connection that joined its room
func (c *Client) PushMessage(msg *protocol.MessageData) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := protocol.Encode(&protocol.PushMsgData{
		Msgs: map[string][]*protocol.MessageData{
			msg.ConversationId: {msg},
		},
	})
	if err != nil {
		return err
	}

	return c.writeResponse(protocol.WSResponse{
		ReqIdentifier: protocol.WSPushMsg,
		Data:          data,
	})
}

// PushNotify announces activity in a room the connection has not joined
func (c *Client) PushNotify(notify *protocol.NotifyData) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := protocol.Encode(notify)
	if err != nil {
		return err
	}

	return c.writeResponse(protocol.WSResponse{
		ReqIdentifier: protocol.WSPushNotify,
		Data:          data,
	})
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	if err := c.writeResponse(protocol.WSResponse{ReqIdentifier: protocol.WSKickOnlineMsg}); err != nil {
		log.CtxDebug(c.ctx, "write kick failed: user_id=%s, error=%v", c.UserId, err)
	}
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when the read loop ends
func (c *Client) close() {
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
