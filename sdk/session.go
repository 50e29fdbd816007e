package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/pkg/protocol"
)

// Backend is the REST side a Session pulls from
type Backend interface {
	ConversationLister
	HistoryFetcher
	MarkRead(ctx context.Context, conversationId string, readSeq int64) (int64, error)
	StartConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error)
}

// Channel is the push side a Session listens on
type Channel interface {
	Connect(ctx context.Context) error
	JoinGroup(conversationId string)
	LeaveGroup(conversationId string)
	Send(msg OutgoingMessage) error
	OnMessage(fn func(*protocol.MessageData))
	OnNotify(fn func(*protocol.NotifyData))
	OnAck(fn func(*Ack))
	OnStateChange(fn func(ConnState))
	Degraded() bool
	Close() error
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithClock replaces time.Now
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithClientMsgIdGenerator replaces the uuid correlation id generator
func WithClientMsgIdGenerator(gen func() string) SessionOption {
	return func(s *Session) {
		s.newClientMsgId = gen
	}
}

// WithHistoryLimit sets how many messages an activation loads
func WithHistoryLimit(limit int) SessionOption {
	return func(s *Session) {
		s.historyLimit = limit
	}
}

// Session ties the client core together for one signed-in user: it owns the single
// live channel, tracks the active conversation and routes every event to the
// directory and the history store.
type Session struct {
	userId  string
	backend Backend
	channel Channel

	dir     *Directory
	history *HistoryStore
	unread  *UnreadAggregator

	now            func() time.Time
	newClientMsgId func() string
	historyLimit   int

	// mu serializes activation; it is never held across network calls
	mu     sync.Mutex
	active string
}

// NewSession wires a session. Construct it once per authenticated user.
func NewSession(userId string, backend Backend, channel Channel, opts ...SessionOption) *Session {
	s := &Session{
		userId:         userId,
		backend:        backend,
		channel:        channel,
		now:            time.Now,
		newClientMsgId: uuid.NewString,
		historyLimit:   DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dir = NewDirectory(backend)
	s.dir.now = s.now
	s.history = NewHistoryStore(backend, s.historyLimit)
	s.unread = NewUnreadAggregator(s.dir)

	channel.OnMessage(s.handleMessage)
	channel.OnNotify(s.handleNotify)
	channel.OnAck(s.handleAck)
	channel.OnStateChange(s.handleState)
	return s
}

// NewClientSession builds a session over a logged-in REST client and a live
// channel to the same server
func NewClientSession(c *Client, userId string, opts ...LiveOption) *Session {
	live := NewLiveChannel(c.WebSocketURL(), c.GetToken(), userId, opts...)
	return NewSession(userId, c, live)
}

// Directory returns the conversation directory
func (s *Session) Directory() *Directory { return s.dir }

// History returns the message history store
func (s *Session) History() *HistoryStore { return s.history }

// Unread returns the badge aggregator
func (s *Session) Unread() *UnreadAggregator { return s.unread }

// UserId returns the signed-in user
func (s *Session) UserId() string { return s.userId }

// ActiveConversation returns the open conversation id, "" when none is open
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Degraded reports whether the session is running on pulls only
func (s *Session) Degraded() bool {
	return s.channel.Degraded()
}

// Start connects the live channel and loads the directory. A connect failure is not
// fatal. When the list is non-empty and nothing is open yet, the first entry is activated.
func (s *Session) Start(ctx context.Context) error {
	if err := s.channel.Connect(ctx); err != nil {
		log.CtxWarn(ctx, "live channel unavailable, running degraded: %v", err)
	}

	if err := s.dir.Load(ctx); err != nil {
		return err
	}

	convs := s.dir.Snapshot()
	if len(convs) == 0 || s.ActiveConversation() != "" {
		return nil
	}
	return s.Activate(ctx, convs[0].ConversationId)
}

// Activate opens a conversation. It switches the active id, leaves the previous
// room, loads history concurrently, joins the new room and marks it read locally
// and then on the server. It returns once the history load settled; a load made
// stale by a later activation is not an error. A server mark-read failure is
// logged and the local zero stays.
func (s *Session) Activate(ctx context.Context, conversationId string) error {
	if conversationId == "" {
		return ErrInvalidParam
	}

	s.mu.Lock()
	prev := s.active
	if prev == conversationId {
		s.mu.Unlock()
		return nil
	}

	s.active = conversationId
	s.dir.setActive(conversationId)
	s.history.setActive(conversationId)

	if prev != "" {
		s.channel.LeaveGroup(prev)
	}

	loaded := make(chan error, 1)
	go func() {
		loaded <- s.history.LoadHistory(ctx, conversationId)
	}()

	s.channel.JoinGroup(conversationId)
	s.mu.Unlock()

	// Badge subscribers run inside MarkRead, so it stays outside mu
	s.dir.MarkRead(conversationId)
	s.markReadRemote(ctx, conversationId, 0)

	err := <-loaded
	if errors.Is(err, ErrStaleHistory) {
		return nil
	}
	return err
}

// Send appends an optimistic message to the active conversation and emits it.
// If the emit fails the message is flagged failed and the error is returned with it.
func (s *Session) Send(ctx context.Context, content string) (*Message, error) {
	conversationId := s.ActiveConversation()
	if conversationId == "" {
		return nil, ErrNoActiveConversation
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrMessageEmpty
	}

	recipientId := peerOf(conversationId, s.userId)
	if recipientId == "" {
		if conv, ok := s.dir.Get(conversationId); ok {
			recipientId = conv.Counterpart.UserId
		}
	}

	msg := Message{
		ClientMsgId:    s.newClientMsgId(),
		ConversationId: conversationId,
		SenderId:       s.userId,
		RecipientId:    recipientId,
		Content:        content,
		SentAt:         s.now(),
		State:          StateOptimistic,
	}

	s.history.AppendOptimistic(msg)
	s.dir.ApplyOutgoing(Activity{
		ConversationId: conversationId,
		PeerId:         recipientId,
		SenderId:       s.userId,
		Preview:        previewOf(content),
		OccurredAt:     msg.SentAt,
	})

	err := s.channel.Send(OutgoingMessage{
		ClientMsgId:    msg.ClientMsgId,
		ConversationId: conversationId,
		SenderId:       s.userId,
		RecipientId:    recipientId,
		Content:        content,
		ClientSendAt:   msg.SentAt,
	})
	if err != nil {
		s.history.Fail(msg.ClientMsgId)
		msg.State = StateFailed
		log.CtxWarn(ctx, "send failed: conversation_id=%s, client_msg_id=%s, error=%v", conversationId, msg.ClientMsgId, err)
		return &msg, fmt.Errorf("send message: %w", err)
	}

	return &msg, nil
}

// StartConversation opens (or creates) the conversation with peerUserId and activates it
func (s *Session) StartConversation(ctx context.Context, peerUserId string) (*Conversation, error) {
	info, err := s.backend.StartConversation(ctx, peerUserId)
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	conv := conversationFromInfo(info, s.now())
	s.dir.Upsert(conv)

	if err := s.Activate(ctx, conv.ConversationId); err != nil {
		return &conv, err
	}
	return &conv, nil
}

// Close ends the session's live channel
func (s *Session) Close() error {
	return s.channel.Close()
}

// handleMessage routes a room push to the history store and the directory
func (s *Session) handleMessage(data *protocol.MessageData) {
	msg := messageFromData(data)
	appended := s.history.AppendConfirmed(msg)

	activity := Activity{
		ConversationId: data.ConversationId,
		SenderId:       data.SenderId,
		Preview:        previewOf(data.Content),
		OccurredAt:     msg.SentAt,
		Seq:            data.Seq,
	}

	if data.SenderId == s.userId {
		activity.PeerId = data.RecvId
		s.dir.ApplyOutgoing(activity)
		return
	}

	activity.PeerId = data.SenderId
	s.dir.ApplyIncoming(activity)

	// The message is on screen, so the server-side read position follows it
	if appended && data.ConversationId == s.ActiveConversation() {
		go s.markReadRemote(context.Background(), data.ConversationId, data.Seq)
	}
}

// handleNotify applies an out-of-band activity notification
func (s *Session) handleNotify(data *protocol.NotifyData) {
	if data.SenderId == s.userId {
		return
	}

	s.dir.ApplyIncoming(Activity{
		ConversationId: data.ConversationId,
		PeerId:         data.SenderId,
		SenderId:       data.SenderId,
		Preview:        data.Preview,
		OccurredAt:     unixMilli(data.SendAt),
		Seq:            data.Seq,
	})
}

// handleAck reconciles an optimistic message with the server's answer
func (s *Session) handleAck(ack *Ack) {
	if ack.Failed() {
		s.history.Fail(ack.ClientMsgId)
		log.Warn("send rejected: client_msg_id=%s, err_code=%d, err_msg=%s", ack.ClientMsgId, ack.ErrCode, ack.ErrMsg)
		return
	}

	msg, ok := s.history.Confirm(ack.ClientMsgId, ack.Seq, ack.SendAt)
	if !ok {
		return
	}

	s.dir.ApplyOutgoing(Activity{
		ConversationId: msg.ConversationId,
		PeerId:         msg.RecipientId,
		SenderId:       msg.SenderId,
		Preview:        previewOf(msg.Content),
		OccurredAt:     msg.SentAt,
		Seq:            msg.Seq,
	})
}

// handleState pulls again after every connect, since the server pushes nothing for
// messages persisted while this client had no connection
func (s *Session) handleState(state ConnState) {
	if state != StateConnected {
		return
	}
	go s.resync(context.Background())
}

// resync reloads the directory and the open conversation's history
func (s *Session) resync(ctx context.Context) {
	if err := s.dir.Load(ctx); err != nil {
		log.CtxWarn(ctx, "resync conversations failed: %v", err)
	}

	active := s.ActiveConversation()
	if active == "" {
		return
	}
	if err := s.history.LoadHistory(ctx, active); err != nil && !errors.Is(err, ErrStaleHistory) {
		log.CtxWarn(ctx, "resync history failed: conversation_id=%s, error=%v", active, err)
		return
	}
	s.markReadRemote(ctx, active, 0)
}

func (s *Session) markReadRemote(ctx context.Context, conversationId string, readSeq int64) {
	if _, err := s.backend.MarkRead(ctx, conversationId, readSeq); err != nil {
		log.CtxWarn(ctx, "mark read failed: conversation_id=%s, error=%v", conversationId, err)
	}
}
