package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/repository"
	"github.com/mbeoliero/coachim/pkg/errcode"
)

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo *repository.ConversationRepo
	seqRepo  *repository.SeqRepo
	msgRepo  *repository.MessageRepo
	userRepo *repository.UserRepo
	repos    *repository.Repositories
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories) *ConversationService {
	return &ConversationService{
		convRepo: repos.Conversation,
		seqRepo:  repos.Seq,
		msgRepo:  repos.Message,
		userRepo: repos.User,
		repos:    repos,
	}
}

// CanAccess reports whether userId is a participant of conversationId
func (s *ConversationService) CanAccess(_ context.Context, userId, conversationId string) bool {
	return entity.IsParticipant(conversationId, userId)
}

// GetUserConversations lists the user's conversations, most recent first, with the peer's
// profile and the last message preview attached.
func (s *ConversationService) GetUserConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	convs, err := s.convRepo.GetUserConversationsWithSeq(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	peerIds := make([]string, 0, len(convs))
	lastSeqs := make(map[string]int64, len(convs))
	for _, c := range convs {
		peerIds = append(peerIds, c.PeerUserId)
		lastSeqs[c.ConversationId] = c.MaxSeq
	}

	peers, err := s.userRepo.GetByIds(ctx, peerIds)
	if err != nil {
		log.CtxError(ctx, "get conversation peers failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	lastMsgs, err := s.msgRepo.GetByConvSeqs(ctx, lastSeqs)
	if err != nil {
		log.CtxError(ctx, "get last messages failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	result := make([]*entity.ConversationInfo, 0, len(convs))
	for _, c := range convs {
		result = append(result, c.ToConversationInfo(peers[c.PeerUserId], lastMsgs[c.ConversationId]))
	}
	return result, nil
}

// GetConversation gets a specific conversation for a user
func (s *ConversationService) GetConversation(ctx context.Context, userId, conversationId string) (*entity.ConversationInfo, error) {
	conv, err := s.convRepo.GetByOwnerAndConvId(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: user_id=%s, conversation_id=%s, error=%v", userId, conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}

	maxSeq, readSeq, err := s.GetMaxReadSeq(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}

	withSeq := &entity.ConversationWithSeq{
		Conversation: *conv,
		MaxSeq:       maxSeq,
		ReadSeq:      readSeq,
		UnreadCount:  entity.UnreadCount(maxSeq, readSeq),
	}

	peer, err := s.userRepo.GetById(ctx, conv.PeerUserId)
	if err != nil {
		log.CtxWarn(ctx, "get conversation peer failed: peer_user_id=%s, error=%v", conv.PeerUserId, err)
	}
	last, err := s.msgRepo.GetByConvSeqs(ctx, map[string]int64{conversationId: maxSeq})
	if err != nil {
		log.CtxWarn(ctx, "get last message failed: conversation_id=%s, error=%v", conversationId, err)
	}

	return withSeq.ToConversationInfo(peer, last[conversationId]), nil
}

// StartConversation returns the conversation between userId and peerUserId, creating it
// for both parties when it does not exist yet.
func (s *ConversationService) StartConversation(ctx context.Context, userId, peerUserId string) (*entity.ConversationInfo, error) {
	if peerUserId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if peerUserId == userId {
		return nil, errcode.ErrCannotChatSelf
	}

	exists, err := s.userRepo.Exists(ctx, peerUserId)
	if err != nil {
		log.CtxError(ctx, "check peer exists failed: peer_user_id=%s, error=%v", peerUserId, err)
		return nil, errcode.ErrInternalServer
	}
	if !exists {
		return nil, errcode.ErrUserNotFound
	}

	conversationId := entity.GenSingleConversationId(userId, peerUserId)
	existing, err := s.convRepo.GetByOwnerAndConvId(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}

	if existing == nil {
		err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
			if err := s.convRepo.EnsureSingleChatConversations(ctx, tx, conversationId, userId, peerUserId); err != nil {
				return err
			}
			return s.seqRepo.EnsureSeqConversationExists(ctx, tx, conversationId)
		})
		if err != nil {
			log.CtxError(ctx, "start conversation failed: conversation_id=%s, error=%v", conversationId, err)
			return nil, errcode.ErrInternalServer
		}
		log.CtxInfo(ctx, "conversation started: conversation_id=%s, user_id=%s", conversationId, userId)
	}

	return s.GetConversation(ctx, userId, conversationId)
}

// UpdateConversationRequest represents update conversation request
type UpdateConversationRequest struct {
	RecvMsgOpt *int32 `json:"recv_msg_opt,omitempty"`
	IsPinned   *bool  `json:"is_pinned,omitempty"`
}

// UpdateConversation updates conversation settings
func (s *ConversationService) UpdateConversation(ctx context.Context, userId, conversationId string, req *UpdateConversationRequest) error {
	updates := make(map[string]any)
	if req.RecvMsgOpt != nil {
		updates["recv_msg_opt"] = *req.RecvMsgOpt
	}
	if req.IsPinned != nil {
		updates["is_pinned"] = *req.IsPinned
	}

	if len(updates) == 0 {
		return nil
	}

	if err := s.convRepo.Update(ctx, userId, conversationId, updates); err != nil {
		log.CtxError(ctx, "update conversation failed: %v", err)
		return errcode.ErrInternalServer
	}

	return nil
}

// MarkRead moves the user's read position forward. readSeq 0 means "everything so far".
// It is idempotent and returns the read seq that now applies.
func (s *ConversationService) MarkRead(ctx context.Context, userId, conversationId string, readSeq int64) (int64, error) {
	if !entity.IsParticipant(conversationId, userId) {
		return 0, errcode.ErrNotParticipant
	}

	maxSeq, err := s.seqRepo.GetMaxSeq(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get max seq failed: conversation_id=%s, error=%v", conversationId, err)
		return 0, errcode.ErrInternalServer
	}

	target := entity.ClampReadSeq(readSeq, maxSeq)
	if err := s.seqRepo.UpdateReadSeq(ctx, userId, conversationId, target); err != nil {
		log.CtxError(ctx, "update read seq failed: %v", err)
		return 0, errcode.ErrInternalServer
	}

	log.CtxDebug(ctx, "conversation marked read: user_id=%s, conversation_id=%s, read_seq=%d", userId, conversationId, target)
	return target, nil
}

// GetMaxReadSeq gets the max seq and read seq for a conversation
func (s *ConversationService) GetMaxReadSeq(ctx context.Context, userId, conversationId string) (maxSeq, readSeq int64, err error) {
	if !entity.IsParticipant(conversationId, userId) {
		return 0, 0, errcode.ErrNotParticipant
	}

	maxSeq, err = s.seqRepo.GetMaxSeq(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get max seq failed: conversation_id=%s, error=%v", conversationId, err)
		return 0, 0, errcode.ErrInternalServer
	}

	seqUser, err := s.seqRepo.GetSeqUser(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "get seq user failed: conversation_id=%s, error=%v", conversationId, err)
		return 0, 0, errcode.ErrInternalServer
	}
	if seqUser != nil {
		readSeq = seqUser.ReadSeq
	}

	return maxSeq, readSeq, nil
}

// GetTotalUnread sums unread counts across the user's conversations
func (s *ConversationService) GetTotalUnread(ctx context.Context, userId string) (int64, error) {
	convs, err := s.convRepo.GetUserConversationsWithSeq(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user conversations failed: user_id=%s, error=%v", userId, err)
		return 0, errcode.ErrInternalServer
	}

	var total int64
	for _, c := range convs {
		total += c.UnreadCount
	}
	return total, nil
}
