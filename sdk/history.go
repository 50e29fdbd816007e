package sdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

// HistoryFetcher fetches the newest messages of a conversation, oldest first
type HistoryFetcher interface {
	GetHistory(ctx context.Context, conversationId string, limit int) (*PullMessagesResponse, error)
}

// HistoryStore keeps one append-ordered message log per conversation.
// Visible order is the order entries were appended, never a sort by SentAt.
type HistoryStore struct {
	mu       sync.RWMutex
	fetcher  HistoryFetcher
	limit    int
	active   string
	logs     map[string][]*Message
	handlers []func(conversationId string)
}

// NewHistoryStore creates a store that loads up to limit messages per activation
func NewHistoryStore(fetcher HistoryFetcher, limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryStore{
		fetcher: fetcher,
		limit:   limit,
		logs:    make(map[string][]*Message),
	}
}

// OnChange registers fn to be called after a conversation's log changed
func (h *HistoryStore) OnChange(fn func(conversationId string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, fn)
}

// LoadHistory replaces the log of conversationId with a fresh fetch. A result that
// arrives after the conversation stopped being active is dropped with ErrStaleHistory.
// Local entries the fetch does not cover are kept after the fetched ones, in their
// original order: unconfirmed sends whose client id is absent, and confirmed live
// messages newer than the fetched maximum.
func (h *HistoryStore) LoadHistory(ctx context.Context, conversationId string) error {
	resp, err := h.fetcher.GetHistory(ctx, conversationId, h.limit)
	if err != nil {
		log.CtxWarn(ctx, "load history failed: conversation_id=%s, error=%v", conversationId, err)
		return fmt.Errorf("load history %s: %w", conversationId, err)
	}

	fetched := make([]*Message, 0, len(resp.Messages))
	known := make(map[string]struct{}, len(resp.Messages))
	var maxSeq int64
	for _, info := range resp.Messages {
		if info == nil {
			continue
		}
		msg := messageFromInfo(info)
		fetched = append(fetched, &msg)
		if msg.ClientMsgId != "" {
			known[msg.ClientMsgId] = struct{}{}
		}
		if msg.Seq > maxSeq {
			maxSeq = msg.Seq
		}
	}

	h.mu.Lock()
	if h.active != conversationId {
		h.mu.Unlock()
		log.CtxDebug(ctx, "stale history dropped: conversation_id=%s", conversationId)
		return ErrStaleHistory
	}

	for _, local := range h.logs[conversationId] {
		if _, ok := known[local.ClientMsgId]; ok && local.ClientMsgId != "" {
			continue
		}
		if local.State != StateConfirmed || local.Seq > maxSeq {
			fetched = append(fetched, local)
		}
	}
	h.logs[conversationId] = fetched

	h.changed(conversationId)
	return nil
}

// AppendOptimistic appends a just-sent message before any network round trip
func (h *HistoryStore) AppendOptimistic(msg Message) {
	msg.State = StateOptimistic

	h.mu.Lock()
	h.logs[msg.ConversationId] = append(h.logs[msg.ConversationId], &msg)
	h.changed(msg.ConversationId)
}

// AppendConfirmed appends a persisted message if its conversation is active.
// An entry with the same client id is upgraded in place and keeps its position;
// a message whose seq is already in the log is dropped.
// It reports whether the log changed.
func (h *HistoryStore) AppendConfirmed(msg Message) bool {
	msg.State = StateConfirmed

	h.mu.Lock()
	if msg.ConversationId != h.active {
		h.mu.Unlock()
		return false
	}

	entries := h.logs[msg.ConversationId]
	if msg.ClientMsgId != "" {
		for _, m := range entries {
			if m.ClientMsgId != msg.ClientMsgId {
				continue
			}
			if m.State == StateConfirmed && m.Seq == msg.Seq {
				h.mu.Unlock()
				return false
			}
			m.State = StateConfirmed
			m.Seq = msg.Seq
			m.SentAt = msg.SentAt
			h.changed(msg.ConversationId)
			return true
		}
	}
	if msg.Seq > 0 {
		for _, m := range entries {
			if m.Seq == msg.Seq {
				h.mu.Unlock()
				return false
			}
		}
	}

	h.logs[msg.ConversationId] = append(entries, &msg)
	h.changed(msg.ConversationId)
	return true
}

// Confirm marks the entry with clientMsgId as persisted at seq. It returns the
// updated entry, or false when no unconfirmed entry has that id.
func (h *HistoryStore) Confirm(clientMsgId string, seq int64, sentAt time.Time) (Message, bool) {
	h.mu.Lock()
	m := h.findLocked(clientMsgId)
	if m == nil || m.State == StateConfirmed {
		h.mu.Unlock()
		return Message{}, false
	}

	m.State = StateConfirmed
	m.Seq = seq
	if !sentAt.IsZero() {
		m.SentAt = sentAt
	}
	out := *m
	h.changed(m.ConversationId)
	return out, true
}

// Fail flags an optimistic entry as failed. The entry stays visible.
func (h *HistoryStore) Fail(clientMsgId string) bool {
	h.mu.Lock()
	m := h.findLocked(clientMsgId)
	if m == nil || m.State != StateOptimistic {
		h.mu.Unlock()
		return false
	}

	m.State = StateFailed
	h.changed(m.ConversationId)
	return true
}

// Messages returns a copy of a conversation's log
func (h *HistoryStore) Messages(conversationId string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.logs[conversationId]
	out := make([]Message, 0, len(entries))
	for _, m := range entries {
		out = append(out, *m)
	}
	return out
}

// Active returns the conversation whose loads and confirmed appends are accepted
func (h *HistoryStore) Active() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

func (h *HistoryStore) setActive(conversationId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = conversationId
}

func (h *HistoryStore) findLocked(clientMsgId string) *Message {
	if clientMsgId == "" {
		return nil
	}
	for _, entries := range h.logs {
		for _, m := range entries {
			if m.ClientMsgId == clientMsgId {
				return m
			}
		}
	}
	return nil
}

// changed must be called with mu held for writing; it releases mu before calling handlers
func (h *HistoryStore) changed(conversationId string) {
	handlers := h.handlers
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(conversationId)
	}
}
