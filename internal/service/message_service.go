package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/repository"
	"github.com/mbeoliero/coachim/pkg/constant"
	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/idgen"
)

// MessagePusher delivers a persisted message to the live connections of its participants
type MessagePusher interface {
	AsyncPushToUsers(msg *entity.Message, userIds []string)
}

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo  *repository.MessageRepo
	seqRepo  *repository.SeqRepo
	convRepo *repository.ConversationRepo
	userRepo *repository.UserRepo
	repos    *repository.Repositories
	idGen    idgen.IDGenerator
	pusher   MessagePusher
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, idGen idgen.IDGenerator) *MessageService {
	return &MessageService{
		msgRepo:  repos.Message,
		seqRepo:  repos.Seq,
		convRepo: repos.Conversation,
		userRepo: repos.User,
		repos:    repos,
		idGen:    idGen,
	}
}

// SetPusher sets the message pusher
func (s *MessageService) SetPusher(pusher MessagePusher) {
	s.pusher = pusher
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ClientMsgId    string `json:"client_msg_id"`
	ConversationId string `json:"conversation_id,omitempty"`
	RecvId         string `json:"recv_id"`
	MsgType        int32  `json:"msg_type"`
	Content        string `json:"content"`
}

func (r *SendMessageRequest) validate(senderId string) (string, error) {
	if r.RecvId == "" || r.ClientMsgId == "" {
		return "", errcode.ErrInvalidParam
	}
	if r.RecvId == senderId {
		return "", errcode.ErrCannotChatSelf
	}
	if strings.TrimSpace(r.Content) == "" {
		return "", errcode.ErrMessageEmpty
	}
	if utf8.RuneCountInString(r.Content) > constant.MaxContentLength {
		return "", errcode.ErrInvalidParam
	}

	conversationId := entity.GenSingleConversationId(senderId, r.RecvId)
	if r.ConversationId != "" && r.ConversationId != conversationId {
		return "", errcode.ErrNotParticipant
	}
	return conversationId, nil
}

// SendMessage persists a message and queues its live delivery. Resending the same
// client_msg_id returns the stored message without a second push.
func (s *MessageService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.Message, error) {
	conversationId, err := req.validate(senderId)
	if err != nil {
		return nil, err
	}

	existingMsg, err := s.msgRepo.GetByClientMsgId(ctx, senderId, req.ClientMsgId)
	if err != nil {
		log.CtxError(ctx, "check idempotency failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if existingMsg != nil {
		log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
		return existingMsg, nil
	}

	recvExists, err := s.userRepo.Exists(ctx, req.RecvId)
	if err != nil {
		log.CtxError(ctx, "check recipient failed: recv_id=%s, error=%v", req.RecvId, err)
		return nil, errcode.ErrInternalServer
	}
	if !recvExists {
		return nil, errcode.ErrUserNotFound
	}

	msgId, err := s.idGen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	msgType := req.MsgType
	if msgType == 0 {
		msgType = constant.MsgTypeText
	}

	var msg *entity.Message
	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		seq, err := s.seqRepo.AllocSeq(ctx, conversationId)
		if err != nil {
			return errcode.ErrSeqAllocFailed.Wrap(err)
		}

		msg = &entity.Message{
			Id:             msgId,
			ConversationId: conversationId,
			Seq:            seq,
			ClientMsgId:    req.ClientMsgId,
			SenderId:       senderId,
			RecvId:         req.RecvId,
			MsgType:        msgType,
			Content:        req.Content,
			SendAt:         entity.NowUnixMilli(),
		}
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.seqRepo.SyncSeqToMySQLWithTx(ctx, tx, conversationId, seq); err != nil {
			return err
		}
		return s.convRepo.EnsureSingleChatConversations(ctx, tx, conversationId, senderId, req.RecvId)
	})
	if err != nil {
		var e *errcode.Error
		if errors.As(err, &e) {
			return nil, e
		}
		log.CtxError(ctx, "send message failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	// The sender has read their own message
	if err := s.seqRepo.UpdateReadSeq(ctx, senderId, conversationId, msg.Seq); err != nil {
		log.CtxWarn(ctx, "update sender read seq failed: conversation_id=%s, error=%v", conversationId, err)
	}

	if s.pusher != nil {
		s.pusher.AsyncPushToUsers(msg, []string{senderId, req.RecvId})
	}

	log.CtxInfo(ctx, "message sent: sender_id=%s, recv_id=%s, conversation_id=%s, seq=%d", senderId, req.RecvId, conversationId, msg.Seq)
	return msg, nil
}

// PullMessagesRequest represents pull messages request
type PullMessagesRequest struct {
	ConversationId string  `json:"conversation_id" query:"conversation_id"`
	BeginSeq       int64   `json:"begin_seq" query:"begin_seq"`
	EndSeq         int64   `json:"end_seq" query:"end_seq"`
	Limit          int     `json:"limit" query:"limit"`
	SeqList        []int64 `json:"seq_list,omitempty"`
}

// PullMessages pulls a seq range for a participant; EndSeq 0 means "up to the newest"
func (s *MessageService) PullMessages(ctx context.Context, userId string, req *PullMessagesRequest) ([]*entity.Message, int64, error) {
	maxSeq, seqUser, err := s.accessibleSeq(ctx, userId, req.ConversationId)
	if err != nil {
		return nil, 0, err
	}

	beginSeq, endSeq := seqUser.ClampSeqRange(req.BeginSeq, req.EndSeq, maxSeq)
	if beginSeq > endSeq {
		return []*entity.Message{}, maxSeq, nil
	}

	messages, err := s.msgRepo.PullMessages(ctx, req.ConversationId, beginSeq, endSeq, req.Limit)
	if err != nil {
		log.CtxError(ctx, "pull messages failed: %v", err)
		return nil, 0, errcode.ErrPullFailed
	}
	return messages, maxSeq, nil
}

// PullMessagesBySeqList pulls specific seqs, dropping any outside the visible range
func (s *MessageService) PullMessagesBySeqList(ctx context.Context, userId string, req *PullMessagesRequest) ([]*entity.Message, int64, error) {
	maxSeq, seqUser, err := s.accessibleSeq(ctx, userId, req.ConversationId)
	if err != nil {
		return nil, 0, err
	}

	minSeq, _ := seqUser.ClampSeqRange(0, maxSeq, maxSeq)
	visible := make([]int64, 0, len(req.SeqList))
	for _, seq := range req.SeqList {
		if seq >= minSeq && seq <= maxSeq {
			visible = append(visible, seq)
		}
	}

	messages, err := s.msgRepo.PullMessagesBySeqList(ctx, req.ConversationId, visible)
	if err != nil {
		log.CtxError(ctx, "pull messages by seq list failed: %v", err)
		return nil, 0, errcode.ErrPullFailed
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, maxSeq, nil
}

// GetHistory returns the latest limit messages of a conversation in ascending seq order
func (s *MessageService) GetHistory(ctx context.Context, userId, conversationId string, limit int) ([]*entity.Message, int64, error) {
	maxSeq, _, err := s.accessibleSeq(ctx, userId, conversationId)
	if err != nil {
		return nil, 0, err
	}

	messages, err := s.msgRepo.GetLatestMessages(ctx, conversationId, limit)
	if err != nil {
		log.CtxError(ctx, "get history failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, 0, errcode.ErrPullFailed
	}
	return messages, maxSeq, nil
}

// GetMaxSeq gets the max seq for a conversation the user takes part in
func (s *MessageService) GetMaxSeq(ctx context.Context, userId, conversationId string) (int64, error) {
	if !entity.IsParticipant(conversationId, userId) {
		return 0, errcode.ErrNoPermission
	}

	maxSeq, err := s.seqRepo.GetMaxSeq(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get max seq failed: conversation_id=%s, error=%v", conversationId, err)
		return 0, errcode.ErrInternalServer
	}
	return maxSeq, nil
}

func (s *MessageService) accessibleSeq(ctx context.Context, userId, conversationId string) (int64, *entity.SeqUser, error) {
	if !entity.IsParticipant(conversationId, userId) {
		return 0, nil, errcode.ErrNoPermission
	}

	maxSeq, err := s.seqRepo.GetMaxSeq(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation seq failed: %v", err)
		return 0, nil, errcode.ErrInternalServer
	}

	seqUser, err := s.seqRepo.GetSeqUser(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "get seq user failed: %v", err)
		return 0, nil, errcode.ErrInternalServer
	}
	return maxSeq, seqUser, nil
}
