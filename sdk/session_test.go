package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coachim/pkg/protocol"
)

const (
	selfId = "in__9"
	convB  = "si_cl__2:in__9"
)

type markReadCall struct {
	conversationId string
	readSeq        int64
}

type fakeBackend struct {
	mu       sync.Mutex
	lists    int
	convs    []*ConversationInfo
	listErr  error
	history  map[string]*PullMessagesResponse
	gates    map[string]chan struct{}
	entered  chan string
	marks    []markReadCall
	markErr  error
	started  *ConversationInfo
	startErr error
}

func newFakeBackend(convs ...*ConversationInfo) *fakeBackend {
	return &fakeBackend{
		convs:   convs,
		history: make(map[string]*PullMessagesResponse),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 16),
	}
}

func (f *fakeBackend) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.convs, f.listErr
}

func (f *fakeBackend) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeBackend) GetHistory(ctx context.Context, conversationId string, limit int) (*PullMessagesResponse, error) {
	f.mu.Lock()
	gate := f.gates[conversationId]
	resp := f.history[conversationId]
	f.mu.Unlock()

	f.entered <- conversationId
	if gate != nil {
		<-gate
	}
	if resp == nil {
		return &PullMessagesResponse{}, nil
	}
	return resp, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, conversationId string, readSeq int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, markReadCall{conversationId, readSeq})
	return readSeq, f.markErr
}

func (f *fakeBackend) StartConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.startErr
}

func (f *fakeBackend) markCalls() []markReadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]markReadCall(nil), f.marks...)
}

type fakeChannel struct {
	mu         sync.Mutex
	calls      []string
	sent       []OutgoingMessage
	sendErr    error
	connectErr error
	degraded   bool
	onMessage  func(*protocol.MessageData)
	onNotify   func(*protocol.NotifyData)
	onAck      func(*Ack)
	onState    func(ConnState)
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "connect")
	return f.connectErr
}

func (f *fakeChannel) JoinGroup(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "join:"+id)
}

func (f *fakeChannel) LeaveGroup(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "leave:"+id)
}

func (f *fakeChannel) Send(msg OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) OnMessage(fn func(*protocol.MessageData)) { f.onMessage = fn }
func (f *fakeChannel) OnNotify(fn func(*protocol.NotifyData))   { f.onNotify = fn }
func (f *fakeChannel) OnAck(fn func(*Ack))                      { f.onAck = fn }
func (f *fakeChannel) OnStateChange(fn func(ConnState))         { f.onState = fn }

func (f *fakeChannel) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) roomCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		if c != "connect" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeChannel) push(convId string, seq int64, clientMsgId, sender, content string) {
	recv := peerOf(convId, sender)
	f.onMessage(&protocol.MessageData{
		ServerMsgId:    seq * 100,
		ConversationId: convId,
		Seq:            seq,
		ClientMsgId:    clientMsgId,
		SenderId:       sender,
		RecvId:         recv,
		Content:        content,
		SendAt:         testNow.UnixMilli(),
	})
}

func (f *fakeChannel) notify(convId string, seq int64, sender, preview string) {
	f.onNotify(&protocol.NotifyData{
		ConversationId: convId,
		ServerMsgId:    seq * 100,
		SenderId:       sender,
		Preview:        preview,
		Seq:            seq,
		SendAt:         testNow.UnixMilli(),
	})
}

func newTestSession(t *testing.T, backend *fakeBackend) (*Session, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	var n int
	var mu sync.Mutex
	s := NewSession(selfId, backend, ch,
		WithClock(func() time.Time { return testNow }),
		WithClientMsgIdGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("cmsg-%d", n)
		}),
	)
	return s, ch
}

func scenarioBackend() *fakeBackend {
	return newFakeBackend(
		convInfo(convA, "cl__1", "see you", 3, 10),
		convInfo(convB, "cl__2", "thanks", 0, 4),
	)
}

func TestSession_CoachingDay(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	s, ch := newTestSession(t, backend)

	// Directory loaded with A unread
	require.NoError(t, s.Directory().Load(ctx))
	assert.Equal(t, int64(3), s.Unread().Recompute())

	// Opening B leaves A's badge alone
	require.NoError(t, s.Activate(ctx, convB))
	assert.Equal(t, int64(3), s.Unread().Recompute())
	assert.Equal(t, convB, s.ActiveConversation())

	// A message for A while B is open
	ch.push(convA, 11, "r1", "cl__1", "can we move to 5pm?")
	assert.Equal(t, int64(4), s.Unread().Recompute())
	conv, _ := s.Directory().Get(convA)
	assert.Equal(t, "can we move to 5pm?", *conv.LastMessage)

	// Opening A clears it
	require.NoError(t, s.Activate(ctx, convA))
	assert.Zero(t, s.Unread().Conversation(convA))
	assert.Zero(t, s.Unread().Recompute())

	// Sending shows up before any round trip
	before := len(s.History().Messages(convA))
	msg, err := s.Send(ctx, "sure, 5pm works")
	require.NoError(t, err)
	assert.Equal(t, StateOptimistic, msg.State)

	msgs := s.History().Messages(convA)
	require.Len(t, msgs, before+1)
	assert.Equal(t, "sure, 5pm works", msgs[len(msgs)-1].Content)
	assert.Equal(t, StateOptimistic, msgs[len(msgs)-1].State)

	conv, _ = s.Directory().Get(convA)
	assert.Equal(t, "sure, 5pm works", *conv.LastMessage)
	assert.Zero(t, s.Unread().Recompute())

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "cl__1", ch.sent[0].RecipientId)
	assert.Equal(t, selfId, ch.sent[0].SenderId)
	assert.Equal(t, msg.ClientMsgId, ch.sent[0].ClientMsgId)
}

func TestSession_ActivateJoinsAndLeavesRooms(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))

	require.NoError(t, s.Activate(ctx, convA))
	require.NoError(t, s.Activate(ctx, convA))
	require.NoError(t, s.Activate(ctx, convB))

	assert.Equal(t, []string{"join:" + convA, "leave:" + convA, "join:" + convB}, ch.roomCalls())
}

func TestSession_ActivateMarksReadOnServer(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	backend.markErr = errors.New("server down")
	s, _ := newTestSession(t, backend)
	require.NoError(t, s.Directory().Load(ctx))

	require.NoError(t, s.Activate(ctx, convA))

	assert.Contains(t, backend.markCalls(), markReadCall{convA, 0})
	assert.Zero(t, s.Unread().Conversation(convA))
}

func TestSession_ActivateLoadsHistory(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	backend.history[convA] = &PullMessagesResponse{Messages: []*MessageInfo{
		msgInfo(convA, 9, "c9", "cl__1", "morning"),
		msgInfo(convA, 10, "c10", selfId, "see you"),
	}}
	s, _ := newTestSession(t, backend)

	require.NoError(t, s.Activate(ctx, convA))
	assert.Equal(t, []string{"morning", "see you"}, contents(s.History().Messages(convA)))
}

func TestSession_ActiveConversationStaysRead(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convB))

	ch.push(convB, 5, "r5", "cl__2", "quick question")

	assert.Zero(t, s.Unread().Conversation(convB))
	assert.Equal(t, []string{"quick question"}, contents(s.History().Messages(convB)))
}

func TestSession_InboundAdvancesServerReadWhenActive(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	s, ch := newTestSession(t, backend)
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convB))

	ch.push(convB, 5, "r5", "cl__2", "quick question")

	assert.Eventually(t, func() bool {
		for _, c := range backend.markCalls() {
			if c == (markReadCall{convB, 5}) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestSession_EachInboundCountsOnce(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convB))

	for seq := int64(11); seq <= 15; seq++ {
		ch.push(convA, seq, fmt.Sprintf("r%d", seq), "cl__1", "msg")
	}
	assert.Equal(t, int64(8), s.Unread().Conversation(convA))

	// The same message announced again on another path
	ch.notify(convA, 15, "cl__1", "msg")
	ch.push(convA, 14, "r14", "cl__1", "msg")
	assert.Equal(t, int64(8), s.Unread().Conversation(convA))

	ch.notify(convA, 16, "cl__1", "one more")
	assert.Equal(t, int64(9), s.Unread().Conversation(convA))
}

func TestSession_NotifyIgnoresOwnMessages(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))

	ch.notify(convB, 5, selfId, "from another device")
	assert.Zero(t, s.Unread().Conversation(convB))
}

func TestSession_OwnPushFromAnotherDevice(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	ch.push(convB, 5, "other-device", selfId, "sent from the web")

	conv, _ := s.Directory().Get(convB)
	assert.Equal(t, "sent from the web", *conv.LastMessage)
	assert.Zero(t, conv.UnreadCount)
}

func TestSession_StaleHistoryDiscarded(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	gate := make(chan struct{})
	backend.gates[convA] = gate
	backend.history[convA] = &PullMessagesResponse{Messages: []*MessageInfo{msgInfo(convA, 10, "c10", "cl__1", "late")}}
	backend.history[convB] = &PullMessagesResponse{Messages: []*MessageInfo{msgInfo(convB, 4, "c4", "cl__2", "current")}}
	s, _ := newTestSession(t, backend)

	errA := make(chan error, 1)
	go func() {
		errA <- s.Activate(ctx, convA)
	}()
	require.Equal(t, convA, <-backend.entered)

	require.NoError(t, s.Activate(ctx, convB))
	close(gate)

	require.NoError(t, <-errA)
	assert.Equal(t, convB, s.ActiveConversation())
	assert.Empty(t, s.History().Messages(convA))
	assert.Equal(t, []string{"current"}, contents(s.History().Messages(convB)))
}

func TestSession_OwnEchoDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	msg, err := s.Send(ctx, "hello")
	require.NoError(t, err)

	ch.push(convA, 11, msg.ClientMsgId, selfId, "hello")
	ch.onAck(&Ack{ClientMsgId: msg.ClientMsgId, ConversationId: convA, Seq: 11})

	msgs := s.History().Messages(convA)
	require.Len(t, msgs, 1)
	assert.Equal(t, StateConfirmed, msgs[0].State)
	assert.Equal(t, int64(11), msgs[0].Seq)
	assert.Zero(t, s.Unread().Conversation(convA))
}

func TestSession_AckConfirmsSend(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	msg, err := s.Send(ctx, "booked")
	require.NoError(t, err)

	ch.onAck(&Ack{ClientMsgId: msg.ClientMsgId, ConversationId: convA, Seq: 11, SendAt: testNow.Add(time.Second)})

	msgs := s.History().Messages(convA)
	require.Len(t, msgs, 1)
	assert.Equal(t, StateConfirmed, msgs[0].State)
	assert.Equal(t, testNow.Add(time.Second), msgs[0].SentAt)

	conv, _ := s.Directory().Get(convA)
	assert.Equal(t, int64(11), conv.Seq)
}

func TestSession_RejectedAckFailsMessage(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	msg, err := s.Send(ctx, "hello")
	require.NoError(t, err)

	ch.onAck(&Ack{ClientMsgId: msg.ClientMsgId, ErrCode: CodeNotParticipant, ErrMsg: "not a participant"})

	msgs := s.History().Messages(convA)
	require.Len(t, msgs, 1)
	assert.Equal(t, StateFailed, msgs[0].State)
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	ch.sendErr = ErrNotConnected
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	msg, err := s.Send(ctx, "are you there?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	require.NotNil(t, msg)
	assert.Equal(t, StateFailed, msg.State)

	msgs := s.History().Messages(convA)
	require.Len(t, msgs, 1)
	assert.Equal(t, StateFailed, msgs[0].State)
}

func TestSession_SendValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, scenarioBackend())

	_, err := s.Send(ctx, "hello")
	assert.ErrorIs(t, err, ErrNoActiveConversation)

	require.NoError(t, s.Activate(ctx, convA))
	_, err = s.Send(ctx, "   ")
	assert.ErrorIs(t, err, ErrMessageEmpty)
	assert.Empty(t, s.History().Messages(convA))
}

func TestSession_StartActivatesFirst(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	s, ch := newTestSession(t, backend)
	ch.connectErr = errors.New("refused")

	require.NoError(t, s.Start(ctx))

	assert.Equal(t, convA, s.ActiveConversation())
	assert.Zero(t, s.Unread().Recompute())
	assert.Equal(t, []string{"join:" + convA}, ch.roomCalls())
}

func TestSession_StartEmptyDirectory(t *testing.T) {
	s, ch := newTestSession(t, newFakeBackend())

	require.NoError(t, s.Start(context.Background()))

	assert.Empty(t, s.ActiveConversation())
	assert.Empty(t, ch.roomCalls())
}

func TestSession_StartLoadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.listErr = errors.New("503")
	s, _ := newTestSession(t, backend)

	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, s.Directory().Snapshot())
}

func TestSession_StartConversation(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	backend.started = &ConversationInfo{
		ConversationId: "si_cl__3:in__9",
		PeerUserId:     "cl__3",
		Peer:           &UserInfo{Id: "cl__3", Nickname: "Bea", Role: RoleClient},
	}
	s, ch := newTestSession(t, backend)
	require.NoError(t, s.Directory().Load(ctx))

	conv, err := s.StartConversation(ctx, "cl__3")
	require.NoError(t, err)
	assert.Equal(t, "Bea", conv.Counterpart.Nickname)

	assert.Equal(t, "si_cl__3:in__9", s.Directory().Snapshot()[0].ConversationId)
	assert.Equal(t, "si_cl__3:in__9", s.ActiveConversation())
	assert.Equal(t, []string{"join:si_cl__3:in__9"}, ch.roomCalls())
}

func TestSession_StartConversationError(t *testing.T) {
	backend := scenarioBackend()
	backend.startErr = ErrCannotChatSelf
	s, _ := newTestSession(t, backend)

	_, err := s.StartConversation(context.Background(), selfId)
	assert.ErrorIs(t, err, ErrCannotChatSelf)
	assert.Empty(t, s.ActiveConversation())
}

func TestSession_LateInboundAfterOwnAck(t *testing.T) {
	ctx := context.Background()
	s, ch := newTestSession(t, scenarioBackend())
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	msg, err := s.Send(ctx, "running late")
	require.NoError(t, err)
	ch.onAck(&Ack{ClientMsgId: msg.ClientMsgId, ConversationId: convA, Seq: 12})

	require.NoError(t, s.Activate(ctx, convB))

	// The peer's earlier message is pushed after our ack
	ch.push(convA, 11, "r11", "cl__1", "no worries")

	assert.Equal(t, int64(1), s.Unread().Conversation(convA))
	conv, _ := s.Directory().Get(convA)
	assert.Equal(t, "running late", *conv.LastMessage)
}

func TestSession_ResyncsAfterReconnect(t *testing.T) {
	ctx := context.Background()
	backend := scenarioBackend()
	s, ch := newTestSession(t, backend)
	require.NoError(t, s.Directory().Load(ctx))
	require.NoError(t, s.Activate(ctx, convA))

	// Messages persisted while the connection was down
	backend.mu.Lock()
	backend.convs = []*ConversationInfo{
		convInfo(convA, "cl__1", "missed in A", 1, 11),
		convInfo(convB, "cl__2", "missed in B", 2, 6),
	}
	backend.history[convA] = &PullMessagesResponse{Messages: []*MessageInfo{msgInfo(convA, 11, "c11", "cl__1", "missed in A")}}
	backend.mu.Unlock()
	marksBefore := len(backend.markCalls())

	ch.onState(StateDisconnected)
	ch.onState(StateConnecting)
	assert.Equal(t, 1, backend.listCalls())

	ch.onState(StateConnected)

	require.Eventually(t, func() bool {
		return len(s.History().Messages(convA)) == 1 && len(backend.markCalls()) > marksBefore
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(2), s.Unread().Recompute())
	assert.Zero(t, s.Unread().Conversation(convA))
	assert.Equal(t, "missed in A", s.History().Messages(convA)[0].Content)
	assert.Contains(t, backend.markCalls()[marksBefore:], markReadCall{convA, 0})
}

func TestSession_ResyncWithoutActiveConversation(t *testing.T) {
	backend := scenarioBackend()
	s, ch := newTestSession(t, backend)

	ch.onState(StateConnected)

	require.Eventually(t, func() bool {
		return len(s.Directory().Snapshot()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), s.Unread().Recompute())
	assert.Empty(t, backend.markCalls())
}
