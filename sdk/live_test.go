package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/coachim/pkg/protocol"
)

type serverConn struct {
	conn   *websocket.Conn
	query  url.Values
	frames chan protocol.WSRequest
}

type testWsServer struct {
	srv   *httptest.Server
	conns chan *serverConn
}

func newTestWsServer(t *testing.T) *testWsServer {
	t.Helper()
	s := &testWsServer{conns: make(chan *serverConn, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{conn: conn, query: r.URL.Query(), frames: make(chan protocol.WSRequest, 32)}
		s.conns <- sc

		defer close(sc.frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req protocol.WSRequest
			if json.Unmarshal(raw, &req) == nil {
				sc.frames <- req
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testWsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *testWsServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-s.conns:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (s *testWsServer) assertNoConnection(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case <-s.conns:
		t.Fatal("unexpected connection")
	case <-time.After(wait):
	}
}

func (sc *serverConn) next(t *testing.T) protocol.WSRequest {
	t.Helper()
	select {
	case req, ok := <-sc.frames:
		require.True(t, ok, "connection closed")
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return protocol.WSRequest{}
	}
}

func (sc *serverConn) write(t *testing.T, identifier int32, msgIncr string, errCode int, payload any) {
	t.Helper()
	resp := protocol.WSResponse{ReqIdentifier: identifier, MsgIncr: msgIncr, ErrCode: errCode}
	if payload != nil {
		data, err := protocol.Encode(payload)
		require.NoError(t, err)
		resp.Data = data
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, raw))
}

func roomOf(t *testing.T, req protocol.WSRequest) string {
	t.Helper()
	var room protocol.RoomReq
	require.NoError(t, protocol.Decode(req.Data, &room))
	return room.ConversationId
}

func newTestLive(t *testing.T, wsURL string) *LiveChannel {
	t.Helper()
	l := NewLiveChannel(wsURL, "tok-1", selfId,
		WithPlatformId(PlatformIdIOS),
		WithBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	t.Cleanup(func() { l.Close() })
	return l
}

func waitConnected(t *testing.T, l *LiveChannel) {
	t.Helper()
	require.Eventually(t, func() bool { return l.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestLiveChannel_ConnectSendsIdentity(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)

	assert.Equal(t, "tok-1", sc.query.Get("token"))
	assert.Equal(t, selfId, sc.query.Get("send_id"))
	assert.Equal(t, "1", sc.query.Get("platform_id"))
	assert.Equal(t, SDKType, sc.query.Get("sdk_type"))

	waitConnected(t, l)
	assert.False(t, l.Degraded())
}

func TestLiveChannel_JoinBeforeConnect(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	l.JoinGroup(convA)
	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)

	req := sc.next(t)
	assert.Equal(t, int32(protocol.WSJoinRoom), req.ReqIdentifier)
	assert.Equal(t, convA, roomOf(t, req))
	assert.Equal(t, selfId, req.SendId)

	l.JoinGroup(convB)
	req = sc.next(t)
	assert.Equal(t, int32(protocol.WSJoinRoom), req.ReqIdentifier)
	assert.Equal(t, convB, roomOf(t, req))

	l.LeaveGroup(convA)
	req = sc.next(t)
	assert.Equal(t, int32(protocol.WSLeaveRoom), req.ReqIdentifier)
	assert.Equal(t, convA, roomOf(t, req))
}

func TestLiveChannel_RejoinsAfterReconnect(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	l.JoinGroup(convA)
	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)
	assert.Equal(t, convA, roomOf(t, sc.next(t)))

	sc.conn.Close()

	sc2 := srv.accept(t)
	req := sc2.next(t)
	assert.Equal(t, int32(protocol.WSJoinRoom), req.ReqIdentifier)
	assert.Equal(t, convA, roomOf(t, req))
	waitConnected(t, l)
}

func TestLiveChannel_SendAndAck(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	acks := make(chan *Ack, 1)
	l.OnAck(func(a *Ack) { acks <- a })

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)
	waitConnected(t, l)

	require.NoError(t, l.Send(OutgoingMessage{
		ClientMsgId:    "cmsg-1",
		ConversationId: convA,
		SenderId:       selfId,
		RecipientId:    "cl__1",
		Content:        "see you at 5",
		ClientSendAt:   testNow,
	}))

	req := sc.next(t)
	assert.Equal(t, int32(protocol.WSSendMsg), req.ReqIdentifier)
	assert.Equal(t, "cmsg-1", req.MsgIncr)
	assert.Equal(t, selfId, req.SendId)

	var body protocol.SendMsgReq
	require.NoError(t, protocol.Decode(req.Data, &body))
	assert.Equal(t, "cl__1", body.RecvId)
	assert.Equal(t, "see you at 5", body.Content)
	assert.Equal(t, testNow.UnixMilli(), body.ClientSendAt)

	sc.write(t, protocol.WSSendMsg, "cmsg-1", CodeSuccess, protocol.SendMsgResp{
		ServerMsgId:    77,
		ConversationId: convA,
		Seq:            11,
		ClientMsgId:    "cmsg-1",
		SendAt:         testNow.UnixMilli(),
	})

	select {
	case ack := <-acks:
		assert.False(t, ack.Failed())
		assert.Equal(t, "cmsg-1", ack.ClientMsgId)
		assert.Equal(t, int64(77), ack.ServerMsgId)
		assert.Equal(t, int64(11), ack.Seq)
		assert.True(t, testNow.Equal(ack.SendAt))
	case <-time.After(2 * time.Second):
		t.Fatal("no ack")
	}
}

func TestLiveChannel_ErrorAck(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	acks := make(chan *Ack, 1)
	l.OnAck(func(a *Ack) { acks <- a })

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)

	sc.write(t, protocol.WSSendMsg, "cmsg-2", CodeNotParticipant, nil)

	select {
	case ack := <-acks:
		assert.True(t, ack.Failed())
		assert.Equal(t, "cmsg-2", ack.ClientMsgId)
		assert.Equal(t, CodeNotParticipant, ack.ErrCode)
	case <-time.After(2 * time.Second):
		t.Fatal("no ack")
	}
}

func TestLiveChannel_DeliversInArrivalOrder(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	events := make(chan string, 4)
	l.OnMessage(func(m *protocol.MessageData) { events <- "message:" + m.Content })
	l.OnNotify(func(n *protocol.NotifyData) { events <- "notify:" + n.Preview })

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)

	sc.write(t, protocol.WSPushMsg, "", CodeSuccess, protocol.PushMsgData{Msgs: map[string][]*protocol.MessageData{
		convA: {{ConversationId: convA, Seq: 11, SenderId: "cl__1", Content: "first"}},
	}})
	sc.write(t, protocol.WSPushNotify, "", CodeSuccess, protocol.NotifyData{ConversationId: convB, SenderId: "cl__2", Preview: "second", Seq: 5})
	sc.write(t, protocol.WSPushMsg, "", CodeSuccess, protocol.PushMsgData{Msgs: map[string][]*protocol.MessageData{
		convA: {{ConversationId: convA, Seq: 12, SenderId: "cl__1", Content: "third"}},
	}})

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case e := <-events:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []string{"message:first", "notify:second", "message:third"}, got)
}

func TestLiveChannel_SendBeforeConnect(t *testing.T) {
	l := NewLiveChannel("ws://127.0.0.1:1/ws", "tok", selfId)

	err := l.Send(OutgoingMessage{ClientMsgId: "c1", Content: "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, l.Degraded())
	assert.Equal(t, StateDisconnected, l.State())
}

func TestLiveChannel_ConnectIsIdempotent(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	require.NoError(t, l.Connect(context.Background()))
	require.NoError(t, l.Connect(context.Background()))

	srv.accept(t)
	srv.assertNoConnection(t, 150*time.Millisecond)
}

func TestLiveChannel_KickStopsReconnecting(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	var mu sync.Mutex
	var states []ConnState
	l.OnStateChange(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)
	waitConnected(t, l)

	sc.write(t, protocol.WSKickOnlineMsg, "", CodeSuccess, nil)

	require.Eventually(t, func() bool { return l.State() == StateClosed }, 2*time.Second, 5*time.Millisecond)
	srv.assertNoConnection(t, 150*time.Millisecond)

	assert.ErrorIs(t, l.Send(OutgoingMessage{ClientMsgId: "c1", Content: "hi"}), ErrChannelClosed)
	assert.ErrorIs(t, l.Connect(context.Background()), ErrChannelClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnState{StateConnecting, StateConnected, StateClosed}, states)
}

func TestLiveChannel_UnreachableServerIsDegraded(t *testing.T) {
	l := newTestLive(t, "ws://127.0.0.1:1/ws")
	require.NoError(t, l.Connect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Degraded())
	assert.ErrorIs(t, l.Send(OutgoingMessage{ClientMsgId: "c1", Content: "hi"}), ErrNotConnected)

	require.NoError(t, l.Close())
	assert.Equal(t, StateClosed, l.State())
}

func TestLiveChannel_CloseEndsConnection(t *testing.T) {
	srv := newTestWsServer(t)
	l := newTestLive(t, srv.url())

	require.NoError(t, l.Connect(context.Background()))
	sc := srv.accept(t)
	waitConnected(t, l)

	require.NoError(t, l.Close())
	assert.Equal(t, StateClosed, l.State())

	select {
	case _, ok := <-sc.frames:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("server connection still open")
	}
	srv.assertNoConnection(t, 100*time.Millisecond)
}

func TestLiveChannel_Backoff(t *testing.T) {
	l := NewLiveChannel("ws://localhost/ws", "tok", selfId, WithBackoff(100*time.Millisecond, time.Second))

	for i := 0; i < 20; i++ {
		first := l.backoff(0)
		assert.GreaterOrEqual(t, first, 50*time.Millisecond)
		assert.LessOrEqual(t, first, 100*time.Millisecond)

		third := l.backoff(2)
		assert.GreaterOrEqual(t, third, 200*time.Millisecond)
		assert.LessOrEqual(t, third, 400*time.Millisecond)

		capped := l.backoff(30)
		assert.GreaterOrEqual(t, capped, 500*time.Millisecond)
		assert.LessOrEqual(t, capped, time.Second)
	}
}
