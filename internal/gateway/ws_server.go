package gateway

import (
	"context"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/coachim/internal/config"
	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/service"
	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/jwt"
	"github.com/mbeoliero/coachim/pkg/protocol"
)

// MessageService is the part of service.MessageService the gateway calls
type MessageService interface {
	SendMessage(ctx context.Context, senderId string, req *service.SendMessageRequest) (*entity.Message, error)
	PullMessages(ctx context.Context, userId string, req *service.PullMessagesRequest) ([]*entity.Message, int64, error)
	PullMessagesBySeqList(ctx context.Context, userId string, req *service.PullMessagesRequest) ([]*entity.Message, int64, error)
	GetMaxSeq(ctx context.Context, userId, conversationId string) (int64, error)
}

// ConversationService is the part of service.ConversationService the gateway calls
type ConversationService interface {
	CanAccess(ctx context.Context, userId, conversationId string) bool
	GetMaxReadSeq(ctx context.Context, userId, conversationId string) (int64, int64, error)
}

// Authenticator resolves the handshake token
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
}

// WsServer is the WebSocket server
type WsServer struct {
	cfg            *config.Config
	userMap        *UserMap
	rooms          *RoomMap
	registerChan   chan *Client
	unregisterChan chan *Client
	pushChan       chan *PushTask
	msgService     MessageService
	convService    ConversationService
	auth           Authenticator
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// PushTask represents a message push task
type PushTask struct {
	Msg       *entity.Message
	TargetIds []string
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, msgService MessageService, convService ConversationService, auth Authenticator) *WsServer {
	return &WsServer{
		cfg:            cfg,
		userMap:        NewUserMap(rdb),
		rooms:          NewRoomMap(),
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		pushChan:       make(chan *PushTask, cfg.WebSocket.PushChannelSize),
		msgService:     msgService,
		convService:    convService,
		auth:           auth,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// Run starts the event loop and push workers; they stop when ctx is done
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)

	workerNum := s.cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	for i := 0; i < workerNum; i++ {
		go s.pushLoop(ctx)
	}
	log.Info("started %d push workers", workerNum)
}

func (s *WsServer) connOptions() ConnOptions {
	ws := s.cfg.WebSocket
	return ConnOptions{
		MaxMessageSize:   ws.MaxMessageSize,
		WriteWait:        ws.WriteWait,
		PongWait:         ws.PongWait,
		PingPeriod:       ws.PingPeriod,
		WriteChannelSize: ws.WriteChannelSize,
	}
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// pushLoop handles async message pushing
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.pushChan:
			s.processPushTask(ctx, task)
		}
	}
}

// processPushTask routes one message. Connections that joined the conversation room get
// the full message, the sender's own included, so the echo carries client_msg_id.
// The recipient's other connections get a notification. No connection gets both.
func (s *WsServer) processPushTask(ctx context.Context, task *PushTask) {
	msgData := toMessageData(task.Msg)
	notify := &protocol.NotifyData{
		ConversationId: task.Msg.ConversationId,
		ServerMsgId:    task.Msg.Id,
		SenderId:       task.Msg.SenderId,
		Preview:        task.Msg.Preview(),
		Seq:            task.Msg.Seq,
		SendAt:         task.Msg.SendAt,
	}

	for _, userId := range task.TargetIds {
		clients, ok := s.userMap.GetAll(userId)
		if !ok {
			continue
		}

		for _, client := range clients {
			var err error
			switch {
			case s.rooms.IsJoined(task.Msg.ConversationId, client.ConnId):
				err = client.PushMessage(msgData)
			case userId != task.Msg.SenderId:
				err = client.PushNotify(notify)
			default:
				continue
			}
			if err != nil {
				log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", userId, client.ConnId, err)
			}
		}
	}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	existingClients, exists := s.userMap.GetAll(client.UserId)
	if !exists {
		s.onlineUserNum.Add(1)
	}

	s.userMap.Register(ctx, client)
	s.onlineConnNum.Add(1)

	log.CtxInfo(ctx, "client registered: user_id=%s, role=%s, platform_id=%d, conn_id=%s, existing_conns=%d, online_users=%d, online_conns=%d",
		client.UserId, client.Role, client.PlatformId, client.ConnId, len(existingClients), s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client and drops its room memberships
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.rooms.LeaveAll(client.ConnId)
	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)

	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// AsyncPushToUsers queues a message push to users; a full queue drops the push,
// and clients recover the message through the history pull
func (s *WsServer) AsyncPushToUsers(msg *entity.Message, userIds []string) {
	task := &PushTask{
		Msg:       msg,
		TargetIds: userIds,
	}

	select {
	case s.pushChan <- task:
	default:
		log.Warn("push channel full, message dropped: conversation_id=%s, seq=%d", msg.ConversationId, msg.Seq)
	}
}

// KickTokens closes the user's connections on platformId that were opened with one of tokens
func (s *WsServer) KickTokens(ctx context.Context, userId string, platformId int, tokens []string) {
	clients, ok := s.userMap.GetByPlatform(userId, platformId)
	if !ok {
		return
	}

	kicked := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		kicked[t] = struct{}{}
	}

	for _, client := range clients {
		if _, ok := kicked[client.Token]; !ok {
			continue
		}
		if err := client.KickOnline(); err != nil {
			log.CtxDebug(ctx, "kick client failed: user_id=%s, conn_id=%s, error=%v", userId, client.ConnId, err)
		}
		log.CtxInfo(ctx, "client kicked: user_id=%s, platform_id=%d, conn_id=%s", userId, platformId, client.ConnId)
	}
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

func toMessageData(msg *entity.Message) *protocol.MessageData {
	return &protocol.MessageData{
		ServerMsgId:    msg.Id,
		ConversationId: msg.ConversationId,
		Seq:            msg.Seq,
		ClientMsgId:    msg.ClientMsgId,
		SenderId:       msg.SenderId,
		RecvId:         msg.RecvId,
		MsgType:        msg.MsgType,
		Content:        msg.Content,
		SendAt:         msg.SendAt,
	}
}

// ========== Message Handlers ==========

// HandleGetNewestSeq handles get newest seq request
func (s *WsServer) HandleGetNewestSeq(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var getSeqReq protocol.GetNewestSeqReq
	if err := protocol.Decode(req.Data, &getSeqReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	seqs := make(map[string]int64, len(getSeqReq.ConversationIds))
	for _, convId := range getSeqReq.ConversationIds {
		maxSeq, err := s.msgService.GetMaxSeq(ctx, client.UserId, convId)
		if err != nil {
			log.CtxDebug(ctx, "get newest seq skipped: conversation_id=%s, error=%v", convId, err)
			continue
		}
		seqs[convId] = maxSeq
	}

	return protocol.Encode(protocol.GetNewestSeqResp{Seqs: seqs})
}

// HandleSendMsg persists a message and answers with the ack
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var sendReq protocol.SendMsgReq
	if err := protocol.Decode(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.msgService.SendMessage(ctx, client.UserId, &service.SendMessageRequest{
		ClientMsgId:    sendReq.ClientMsgId,
		ConversationId: sendReq.ConversationId,
		RecvId:         sendReq.RecvId,
		MsgType:        sendReq.MsgType,
		Content:        sendReq.Content,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Encode(protocol.SendMsgResp{
		ServerMsgId:    msg.Id,
		ConversationId: msg.ConversationId,
		Seq:            msg.Seq,
		ClientMsgId:    msg.ClientMsgId,
		SendAt:         msg.SendAt,
	})
}

// HandleJoinRoom subscribes the connection to a conversation's live messages
func (s *WsServer) HandleJoinRoom(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var roomReq protocol.RoomReq
	if err := protocol.Decode(req.Data, &roomReq); err != nil || roomReq.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if !s.convService.CanAccess(ctx, client.UserId, roomReq.ConversationId) {
		return nil, errcode.ErrNotParticipant
	}

	s.rooms.Join(roomReq.ConversationId, client)
	log.CtxDebug(ctx, "room joined: user_id=%s, conn_id=%s, conversation_id=%s", client.UserId, client.ConnId, roomReq.ConversationId)
	return protocol.Encode(roomReq)
}

// HandleLeaveRoom unsubscribes the connection; leaving a room never joined succeeds
func (s *WsServer) HandleLeaveRoom(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var roomReq protocol.RoomReq
	if err := protocol.Decode(req.Data, &roomReq); err != nil || roomReq.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	s.rooms.Leave(roomReq.ConversationId, client.ConnId)
	log.CtxDebug(ctx, "room left: user_id=%s, conn_id=%s, conversation_id=%s", client.UserId, client.ConnId, roomReq.ConversationId)
	return protocol.Encode(roomReq)
}

// HandlePullMsg handles pull messages request
func (s *WsServer) HandlePullMsg(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var pullReq protocol.PullMsgReq
	if err := protocol.Decode(req.Data, &pullReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	messages, maxSeq, err := s.msgService.PullMessages(ctx, client.UserId, &service.PullMessagesRequest{
		ConversationId: pullReq.ConversationId,
		BeginSeq:       pullReq.BeginSeq,
		EndSeq:         pullReq.EndSeq,
		Limit:          pullReq.Limit,
	})
	if err != nil {
		return nil, err
	}

	return encodePullResp(messages, maxSeq)
}

// HandlePullMsgBySeqList handles pull messages by seq list request
func (s *WsServer) HandlePullMsgBySeqList(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var pullReq protocol.PullMsgReq
	if err := protocol.Decode(req.Data, &pullReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	messages, maxSeq, err := s.msgService.PullMessagesBySeqList(ctx, client.UserId, &service.PullMessagesRequest{
		ConversationId: pullReq.ConversationId,
		SeqList:        pullReq.SeqList,
	})
	if err != nil {
		return nil, err
	}

	return encodePullResp(messages, maxSeq)
}

func encodePullResp(messages []*entity.Message, maxSeq int64) ([]byte, error) {
	list := make([]*protocol.MessageData, 0, len(messages))
	for _, msg := range messages {
		list = append(list, toMessageData(msg))
	}
	return protocol.Encode(protocol.PullMsgResp{Messages: list, MaxSeq: maxSeq})
}

// HandleGetConvMaxReadSeq handles get conversation max/read seq request
func (s *WsServer) HandleGetConvMaxReadSeq(ctx context.Context, client *Client, req *protocol.WSRequest) ([]byte, error) {
	var getSeqReq protocol.GetConvMaxReadSeqReq
	if err := protocol.Decode(req.Data, &getSeqReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	maxSeq, readSeq, err := s.convService.GetMaxReadSeq(ctx, client.UserId, getSeqReq.ConversationId)
	if err != nil {
		return nil, err
	}

	return protocol.Encode(protocol.GetConvMaxReadSeqResp{
		MaxSeq:      maxSeq,
		ReadSeq:     readSeq,
		UnreadCount: entity.UnreadCount(maxSeq, readSeq),
	})
}
