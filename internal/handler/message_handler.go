package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/middleware"
	"github.com/mbeoliero/coachim/internal/service"
	"github.com/mbeoliero/coachim/pkg/constant"
	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// SendMessage handles send message request (HTTP fallback)
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.SendMessageRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.SendMessage(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToMessageInfo())
}

// PullMessages handles pull messages request
func (h *MessageHandler) PullMessages(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.PullMessagesRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	messages, maxSeq, err := h.msgService.PullMessages(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"messages": toMessageInfos(messages),
		"max_seq":  maxSeq,
	})
}

// GetHistory returns the newest messages of a conversation, oldest first
func (h *MessageHandler) GetHistory(ctx context.Context, c *app.RequestContext) {
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

	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = constant.DefaultHistorySize
	}
	if limit > constant.MaxPullSize {
		limit = constant.MaxPullSize
	}

	messages, maxSeq, err := h.msgService.GetHistory(ctx, userId, conversationId, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"messages": toMessageInfos(messages),
		"max_seq":  maxSeq,
	})
}

// GetMaxSeq handles get max seq request
func (h *MessageHandler) GetMaxSeq(ctx context.Context, c *app.RequestContext) {
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

	maxSeq, err := h.msgService.GetMaxSeq(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"max_seq": maxSeq,
	})
}

func toMessageInfos(messages []*entity.Message) []*entity.MessageInfo {
	infos := make([]*entity.MessageInfo, 0, len(messages))
	for _, msg := range messages {
		infos = append(infos, msg.ToMessageInfo())
	}
	return infos
}
