package sdk

import (
	"context"
	"net/url"
)

// GetConversationList gets all conversations for the current user
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	if err := c.get(ctx, "/conversation/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result ConversationInfo
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartConversation returns the conversation with peerUserId, creating it on first contact
func (c *Client) StartConversation(ctx context.Context, peerUserId string) (*ConversationInfo, error) {
	var result ConversationInfo
	if err := c.post(ctx, "/conversation/start", &StartConversationRequest{PeerUserId: peerUserId}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateConversation updates conversation settings
func (c *Client) UpdateConversation(ctx context.Context, conversationId string, req *UpdateConversationRequest) error {
	path := "/conversation/update?conversation_id=" + url.QueryEscape(conversationId)
	return c.put(ctx, path, req, nil)
}

// SetConversationPinned sets the pinned status of a conversation
func (c *Client) SetConversationPinned(ctx context.Context, conversationId string, isPinned bool) error {
	return c.UpdateConversation(ctx, conversationId, &UpdateConversationRequest{
		IsPinned: &isPinned,
	})
}

// SetConversationRecvMsgOpt sets the receive message option of a conversation
func (c *Client) SetConversationRecvMsgOpt(ctx context.Context, conversationId string, recvMsgOpt int32) error {
	return c.UpdateConversation(ctx, conversationId, &UpdateConversationRequest{
		RecvMsgOpt: &recvMsgOpt,
	})
}

// MarkRead marks a conversation as read up to readSeq, or entirely when readSeq is 0.
// It returns the read seq the server now holds.
func (c *Client) MarkRead(ctx context.Context, conversationId string, readSeq int64) (int64, error) {
	req := &MarkReadRequest{
		ConversationId: conversationId,
		ReadSeq:        readSeq,
	}
	var result MarkReadResponse
	if err := c.post(ctx, "/conversation/mark_read", req, &result); err != nil {
		return 0, err
	}
	return result.ReadSeq, nil
}

// GetMaxReadSeq gets the max seq and read seq for a conversation
func (c *Client) GetMaxReadSeq(ctx context.Context, conversationId string) (*MaxReadSeqResponse, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result MaxReadSeqResponse
	if err := c.get(ctx, "/conversation/max_read_seq", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUnreadCount gets the unread count for a conversation
func (c *Client) GetUnreadCount(ctx context.Context, conversationId string) (int64, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result UnreadCountResponse
	if err := c.get(ctx, "/conversation/unread_count", params, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

// GetTotalUnread gets the unread count summed over all conversations
func (c *Client) GetTotalUnread(ctx context.Context) (int64, error) {
	var result UnreadCountResponse
	if err := c.get(ctx, "/conversation/unread_count", nil, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}
