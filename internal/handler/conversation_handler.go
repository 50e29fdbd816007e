package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/middleware"
	"github.com/mbeoliero/coachim/internal/service"
	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// GetConversationList handles get conversation list request
func (h *ConversationHandler) GetConversationList(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	convs, err := h.convService.GetUserConversations(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, convs)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.GetConversation(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// StartConversationRequest represents start conversation request
type StartConversationRequest struct {
	PeerUserId string `json:"peer_user_id"`
}

// StartConversation returns the caller's conversation with a peer, creating it on first contact
func (h *ConversationHandler) StartConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req StartConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.StartConversation(ctx, userId, req.PeerUserId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// UpdateConversation handles update conversation settings request
func (h *ConversationHandler) UpdateConversation(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var req service.UpdateConversationRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.convService.UpdateConversation(ctx, userId, conversationId, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// MarkReadRequest represents mark read request. ReadSeq 0 marks everything read.
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	ReadSeq        int64  `json:"read_seq"`
}

// MarkRead handles mark conversation as read request
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req MarkReadRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	readSeq, err := h.convService.MarkRead(ctx, userId, req.ConversationId, req.ReadSeq)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"conversation_id": req.ConversationId,
		"read_seq":        readSeq,
	})
}

// GetMaxReadSeq handles get max and read seq for a conversation
func (h *ConversationHandler) GetMaxReadSeq(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	maxSeq, readSeq, err := h.convService.GetMaxReadSeq(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"max_seq":      maxSeq,
		"read_seq":     readSeq,
		"unread_count": entity.UnreadCount(maxSeq, readSeq),
	})
}

// GetUnreadCount returns one conversation's unread count, or the caller's total when
// conversation_id is omitted
func (h *ConversationHandler) GetUnreadCount(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		total, err := h.convService.GetTotalUnread(ctx, userId)
		if err != nil {
			response.Error(ctx, c, err)
			return
		}
		response.Success(ctx, c, map[string]interface{}{
			"unread_count": total,
		})
		return
	}

	maxSeq, readSeq, err := h.convService.GetMaxReadSeq(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"conversation_id": conversationId,
		"unread_count":    entity.UnreadCount(maxSeq, readSeq),
	})
}
