package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/pkg/protocol"
)

// ConnState is the live channel's connection state
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LiveOption configures a LiveChannel
type LiveOption func(*LiveChannel)

// WithDialer sets the websocket dialer
func WithDialer(dialer *websocket.Dialer) LiveOption {
	return func(l *LiveChannel) {
		l.dialer = dialer
	}
}

// WithPlatformId sets the platform the connection registers as
func WithPlatformId(platformId int) LiveOption {
	return func(l *LiveChannel) {
		l.platformId = platformId
	}
}

// WithBackoff sets the reconnect delay bounds
func WithBackoff(min, max time.Duration) LiveOption {
	return func(l *LiveChannel) {
		l.backoffMin = min
		l.backoffMax = max
	}
}

// WithHeartbeat sets the ping period and the pong deadline
func WithHeartbeat(pingPeriod, pongWait time.Duration) LiveOption {
	return func(l *LiveChannel) {
		l.pingPeriod = pingPeriod
		l.pongWait = pongWait
	}
}

// LiveChannel is the single push connection of a session. It reconnects with
// exponential backoff, re-joins the rooms it was asked to join, and delivers
// inbound events from one reader goroutine in arrival order.
type LiveChannel struct {
	wsURL      string
	token      string
	userId     string
	platformId int
	dialer     *websocket.Dialer

	backoffMin time.Duration
	backoffMax time.Duration
	pingPeriod time.Duration
	pongWait   time.Duration
	writeWait  time.Duration

	mu       sync.Mutex
	state    ConnState
	conn     *websocket.Conn
	groups   map[string]struct{}
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	writeMu  sync.Mutex
	handlers liveHandlers
}

type liveHandlers struct {
	message []func(*protocol.MessageData)
	notify  []func(*protocol.NotifyData)
	ack     []func(*Ack)
	state   []func(ConnState)
}

// NewLiveChannel creates a channel for userId; nothing is dialed until Connect
func NewLiveChannel(wsURL, token, userId string, opts ...LiveOption) *LiveChannel {
	l := &LiveChannel{
		wsURL:      wsURL,
		token:      token,
		userId:     userId,
		platformId: PlatformIdUnknown,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoffMin: DefaultBackoffMin,
		backoffMax: DefaultBackoffMax,
		pingPeriod: DefaultPingPeriod,
		pongWait:   DefaultPongWait,
		writeWait:  DefaultWriteWait,
		groups:     make(map[string]struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnMessage registers a handler for room messages
func (l *LiveChannel) OnMessage(fn func(*protocol.MessageData)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers.message = append(l.handlers.message, fn)
}

// OnNotify registers a handler for activity notifications
func (l *LiveChannel) OnNotify(fn func(*protocol.NotifyData)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers.notify = append(l.handlers.notify, fn)
}

// OnAck registers a handler for send acks
func (l *LiveChannel) OnAck(fn func(*Ack)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers.ack = append(l.handlers.ack, fn)
}

// OnStateChange registers a handler for connection state changes
func (l *LiveChannel) OnStateChange(fn func(ConnState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers.state = append(l.handlers.state, fn)
}

// Connect starts the connection manager and returns without waiting for the network.
// Later calls are no-ops. Dial failures are retried in the background.
func (l *LiveChannel) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return ErrChannelClosed
	}
	if l.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.started = true
	l.cancel = cancel
	go l.run(runCtx)
	return nil
}

// State returns the current connection state
func (l *LiveChannel) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Degraded reports whether only pulls are working
func (l *LiveChannel) Degraded() bool {
	return l.State() != StateConnected
}

// JoinGroup subscribes to a conversation room. While disconnected the join is
// remembered and sent on the next connect.
func (l *LiveChannel) JoinGroup(conversationId string) {
	l.mu.Lock()
	l.groups[conversationId] = struct{}{}
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		l.sendRoom(conn, protocol.WSJoinRoom, conversationId)
	}
}

// LeaveGroup unsubscribes from a conversation room
func (l *LiveChannel) LeaveGroup(conversationId string) {
	l.mu.Lock()
	delete(l.groups, conversationId)
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		l.sendRoom(conn, protocol.WSLeaveRoom, conversationId)
	}
}

// Send emits a message without waiting for its ack. It fails fast with
// ErrNotConnected when there is no connection.
func (l *LiveChannel) Send(msg OutgoingMessage) error {
	l.mu.Lock()
	conn := l.conn
	closed := l.state == StateClosed
	l.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(protocol.SendMsgReq{
		ClientMsgId:    msg.ClientMsgId,
		ConversationId: msg.ConversationId,
		RecvId:         msg.RecipientId,
		MsgType:        MsgTypeText,
		Content:        msg.Content,
		ClientSendAt:   msg.ClientSendAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode send: %w", err)
	}

	return l.write(conn, protocol.WSRequest{
		ReqIdentifier: protocol.WSSendMsg,
		MsgIncr:       msg.ClientMsgId,
		SendId:        msg.SenderId,
		Data:          data,
	})
}

// Close ends the session's connection for good
func (l *LiveChannel) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	started := l.started
	cancel := l.cancel
	conn := l.conn
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if started {
		<-l.done
	}
	l.setState(StateClosed)
	return nil
}

func (l *LiveChannel) run(ctx context.Context) {
	defer close(l.done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		l.setState(StateConnecting)
		conn, err := l.dial(ctx)
		if err != nil {
			l.setState(StateDisconnected)
			wait := l.backoff(attempt)
			attempt++
			log.CtxWarn(ctx, "live channel dial failed: attempt=%d, retry_in=%s, error=%v", attempt, wait, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		attempt = 0
		l.attach(conn)
		kicked := l.serve(ctx, conn)
		l.detach(conn)

		if kicked {
			log.CtxWarn(ctx, "live channel kicked: user_id=%s", l.userId)
			l.setState(StateClosed)
			return
		}
		if ctx.Err() != nil {
			return
		}

		l.setState(StateDisconnected)
		wait := l.backoff(0)
		log.CtxInfo(ctx, "live channel dropped, reconnecting: retry_in=%s", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (l *LiveChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(l.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}

	query := u.Query()
	query.Set("token", l.token)
	query.Set("send_id", l.userId)
	query.Set("platform_id", strconv.Itoa(l.platformId))
	query.Set("sdk_type", SDKType)
	u.RawQuery = query.Encode()

	conn, _, err := l.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return conn, nil
}

// attach publishes conn and re-joins every remembered room
func (l *LiveChannel) attach(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	groups := make([]string, 0, len(l.groups))
	for id := range l.groups {
		groups = append(groups, id)
	}
	l.mu.Unlock()

	l.setState(StateConnected)
	for _, id := range groups {
		l.sendRoom(conn, protocol.WSJoinRoom, id)
	}
}

func (l *LiveChannel) detach(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	conn.Close()
}

// serve reads until the connection fails, the context ends or the server kicks.
// It reports whether the server kicked this session.
func (l *LiveChannel) serve(ctx context.Context, conn *websocket.Conn) bool {
	stop := make(chan struct{})
	defer close(stop)

	conn.SetReadLimit(DefaultMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(l.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.pongWait))
	})

	go l.heartbeat(ctx, conn, stop)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.CtxDebug(ctx, "live channel read failed: %v", err)
			}
			return false
		}

		var resp protocol.WSResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			log.CtxWarn(ctx, "live channel bad frame: %v", err)
			continue
		}

		if resp.ReqIdentifier == protocol.WSKickOnlineMsg {
			return true
		}
		l.dispatch(ctx, &resp)
	}
}

func (l *LiveChannel) heartbeat(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(l.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.writeWait))
			l.writeMu.Unlock()
			if err != nil {
				log.CtxDebug(ctx, "live channel ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

func (l *LiveChannel) dispatch(ctx context.Context, resp *protocol.WSResponse) {
	l.mu.Lock()
	handlers := l.handlers
	l.mu.Unlock()

	switch resp.ReqIdentifier {
	case protocol.WSPushMsg:
		var push protocol.PushMsgData
		if err := protocol.Decode(resp.Data, &push); err != nil {
			log.CtxWarn(ctx, "decode push failed: %v", err)
			return
		}
		for _, msgs := range push.Msgs {
			for _, msg := range msgs {
				for _, fn := range handlers.message {
					fn(msg)
				}
			}
		}

	case protocol.WSPushNotify:
		var notify protocol.NotifyData
		if err := protocol.Decode(resp.Data, &notify); err != nil {
			log.CtxWarn(ctx, "decode notify failed: %v", err)
			return
		}
		for _, fn := range handlers.notify {
			fn(&notify)
		}

	case protocol.WSSendMsg:
		ack := &Ack{ClientMsgId: resp.MsgIncr, ErrCode: resp.ErrCode, ErrMsg: resp.ErrMsg}
		if resp.ErrCode == CodeSuccess {
			var sent protocol.SendMsgResp
			if err := protocol.Decode(resp.Data, &sent); err != nil {
				log.CtxWarn(ctx, "decode ack failed: %v", err)
				return
			}
			ack.ServerMsgId = sent.ServerMsgId
			ack.ConversationId = sent.ConversationId
			ack.Seq = sent.Seq
			ack.SendAt = unixMilli(sent.SendAt)
			if ack.ClientMsgId == "" {
				ack.ClientMsgId = sent.ClientMsgId
			}
		}
		for _, fn := range handlers.ack {
			fn(ack)
		}

	case protocol.WSJoinRoom, protocol.WSLeaveRoom:
		if resp.ErrCode != CodeSuccess {
			log.CtxWarn(ctx, "room request rejected: req_identifier=%d, err_code=%d, err_msg=%s", resp.ReqIdentifier, resp.ErrCode, resp.ErrMsg)
		}

	default:
		log.CtxDebug(ctx, "live channel frame ignored: req_identifier=%d", resp.ReqIdentifier)
	}
}

func (l *LiveChannel) sendRoom(conn *websocket.Conn, identifier int32, conversationId string) {
	data, err := protocol.Encode(protocol.RoomReq{ConversationId: conversationId})
	if err != nil {
		return
	}
	err = l.write(conn, protocol.WSRequest{
		ReqIdentifier: identifier,
		MsgIncr:       conversationId,
		SendId:        l.userId,
		Data:          data,
	})
	if err != nil {
		log.Debug("room request not sent: req_identifier=%d, conversation_id=%s, error=%v", identifier, conversationId, err)
	}
}

func (l *LiveChannel) write(conn *websocket.Conn, req protocol.WSRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(l.writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (l *LiveChannel) setState(state ConnState) {
	l.mu.Lock()
	if l.state == state || l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = state
	handlers := l.handlers.state
	l.mu.Unlock()

	for _, fn := range handlers {
		fn(state)
	}
}

// backoff doubles from backoffMin up to backoffMax and keeps a random half of the delay
func (l *LiveChannel) backoff(attempt int) time.Duration {
	d := l.backoffMin
	for i := 0; i < attempt && d < l.backoffMax; i++ {
		d *= 2
	}
	if d > l.backoffMax {
		d = l.backoffMax
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
