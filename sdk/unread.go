package sdk

// UnreadAggregator derives badge counts from a Directory. It keeps no state of its
// own, so every surface that asks at the same moment sees the same number.
type UnreadAggregator struct {
	dir *Directory
}

// NewUnreadAggregator creates an aggregator over dir
func NewUnreadAggregator(dir *Directory) *UnreadAggregator {
	return &UnreadAggregator{dir: dir}
}

// Recompute returns the sum of unread counts over the directory
func (u *UnreadAggregator) Recompute() int64 {
	return u.dir.total()
}

// Conversation returns the per-conversation badge
func (u *UnreadAggregator) Conversation(conversationId string) int64 {
	return u.dir.unreadOf(conversationId)
}

// Subscribe calls fn with the new total after every directory mutation.
// The returned func cancels the subscription.
func (u *UnreadAggregator) Subscribe(fn func(total int64)) (cancel func()) {
	return u.dir.subscribe(fn)
}
