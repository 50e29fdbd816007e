package sdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

// ConversationLister fetches the signed-in user's conversation list
type ConversationLister interface {
	GetConversationList(ctx context.Context) ([]*ConversationInfo, error)
}

// Directory holds the conversation list of the signed-in user in fetch order.
// Every mutation is followed by one badge notification carrying the new total;
// notifications are delivered in mutation order. Subscribers may read the
// directory and cancel their own subscription, but must not mutate it.
type Directory struct {
	mu      sync.RWMutex
	lister  ConversationLister
	entries []*Conversation
	index   map[string]*Conversation
	seqs    map[string]*seqLog
	active  string
	now     func() time.Time

	// notifyMu orders deliveries; subsMu guards the subscriber set
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[int]func(total int64)
	nextSub  int
}

// seqLog records the seqs a conversation entry has absorbed. Seqs up to base are
// covered by the last fetched list; above it every applied seq is kept with a flag
// telling whether it came from the counterpart.
type seqLog struct {
	base    int64
	applied map[int64]bool
}

func newSeqLog(base int64) *seqLog {
	return &seqLog{base: base, applied: make(map[int64]bool)}
}

// mark records seq and reports whether it had not been applied before
func (l *seqLog) mark(seq int64, inbound bool) bool {
	if seq <= l.base {
		return false
	}
	if _, ok := l.applied[seq]; ok {
		return false
	}
	l.applied[seq] = inbound
	return true
}

// rebase moves base up to a fetched max seq, forgets what it now covers and
// returns how many inbound seqs above it were applied locally
func (l *seqLog) rebase(base int64) int64 {
	if base > l.base {
		l.base = base
	}
	var inbound int64
	for seq, in := range l.applied {
		if seq <= l.base {
			delete(l.applied, seq)
			continue
		}
		if in {
			inbound++
		}
	}
	return inbound
}

// NewDirectory creates an empty directory backed by lister
func NewDirectory(lister ConversationLister) *Directory {
	return &Directory{
		lister: lister,
		index:  make(map[string]*Conversation),
		seqs:   make(map[string]*seqLog),
		now:    time.Now,
		subs:   make(map[int]func(int64)),
	}
}

// Load replaces the list with a fresh fetch. On failure the current list is kept.
// Inbound messages applied locally above the fetched max seq are added on top of
// the fetched unread count, and a local preview newer than the fetched one is kept,
// since those pushes landed after the server built the list. Local entries missing
// from the fetch are kept at the end.
func (d *Directory) Load(ctx context.Context) error {
	infos, err := d.lister.GetConversationList(ctx)
	if err != nil {
		log.CtxWarn(ctx, "load conversations failed: %v", err)
		return fmt.Errorf("load conversations: %w", err)
	}

	now := d.now()
	fetched := make([]*Conversation, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.ConversationId == "" {
			continue
		}
		conv := conversationFromInfo(info, now)
		fetched = append(fetched, &conv)
	}

	d.mu.Lock()
	seqs := make(map[string]*seqLog, len(fetched))
	for _, conv := range fetched {
		id := conv.ConversationId
		seen, ok := d.seqs[id]
		if !ok {
			seen = newSeqLog(conv.Seq)
		} else {
			conv.UnreadCount += seen.rebase(conv.Seq)
			if local, ok := d.index[id]; ok && local.Seq > conv.Seq {
				conv.LastMessage = local.LastMessage
				conv.LastMessageTime = local.LastMessageTime
				conv.LastMessageLabel = TimeLabel(local.LastMessageTime, now)
				conv.Seq = local.Seq
			}
		}
		if id == d.active {
			conv.UnreadCount = 0
		}
		seqs[id] = seen
	}
	for _, local := range d.entries {
		if _, ok := seqs[local.ConversationId]; ok {
			continue
		}
		fetched = append(fetched, local)
		seen, ok := d.seqs[local.ConversationId]
		if !ok {
			seen = newSeqLog(local.Seq)
		}
		seqs[local.ConversationId] = seen
	}

	d.entries = fetched
	d.seqs = seqs
	d.index = make(map[string]*Conversation, len(fetched))
	for _, conv := range fetched {
		d.index[conv.ConversationId] = conv
	}

	log.CtxDebug(ctx, "conversations loaded: count=%d", len(fetched))
	d.commit()
	return nil
}

// ApplyIncoming records a message from the counterpart. Unread grows by exactly one
// unless the conversation is active. A seq that was already applied, or that the
// last fetched list covers, is ignored and ApplyIncoming reports false. Seqs may
// arrive out of order; the preview only moves forward.
func (d *Directory) ApplyIncoming(a Activity) bool {
	d.mu.Lock()
	conv, seen := d.lookupOrCreate(a)
	if a.Seq > 0 && !seen.mark(a.Seq, true) {
		d.mu.Unlock()
		return false
	}

	d.advancePreview(conv, a)
	if conv.ConversationId != d.active {
		conv.UnreadCount++
	}

	d.commit()
	return true
}

// ApplyOutgoing records the local user's own message. It never changes unread,
// and an own seq never hides an older inbound one.
func (d *Directory) ApplyOutgoing(a Activity) bool {
	d.mu.Lock()
	conv, seen := d.lookupOrCreate(a)
	if a.Seq > 0 && !seen.mark(a.Seq, false) {
		d.mu.Unlock()
		return false
	}

	d.advancePreview(conv, a)

	d.commit()
	return true
}

// MarkRead zeroes the unread count of a conversation. It is idempotent.
func (d *Directory) MarkRead(conversationId string) {
	d.mu.Lock()
	conv, ok := d.index[conversationId]
	if !ok || conv.UnreadCount == 0 {
		d.mu.Unlock()
		return
	}

	conv.UnreadCount = 0
	d.commit()
}

// Upsert inserts conv at the top, or refreshes the counterpart of an existing entry.
// An existing preview and unread count are replaced only when conv is at least
// as new as what the entry already absorbed.
func (d *Directory) Upsert(conv Conversation) {
	d.mu.Lock()
	if conv.ConversationId == d.active {
		conv.UnreadCount = 0
	}

	existing, ok := d.index[conv.ConversationId]
	if !ok {
		entry := conv
		d.entries = append([]*Conversation{&entry}, d.entries...)
		d.index[entry.ConversationId] = &entry
		d.seqs[entry.ConversationId] = newSeqLog(entry.Seq)
		d.commit()
		return
	}

	existing.Counterpart = conv.Counterpart
	seen := d.seqs[conv.ConversationId]
	if conv.Seq >= seen.base {
		existing.UnreadCount = conv.UnreadCount + seen.rebase(conv.Seq)
		if conv.ConversationId == d.active {
			existing.UnreadCount = 0
		}
	}
	if conv.Seq > existing.Seq {
		existing.LastMessage = conv.LastMessage
		existing.LastMessageTime = conv.LastMessageTime
		existing.LastMessageLabel = conv.LastMessageLabel
		existing.Seq = conv.Seq
	}
	d.commit()
}

// Snapshot returns a copy of all entries in display order
func (d *Directory) Snapshot() []Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Conversation, 0, len(d.entries))
	for _, conv := range d.entries {
		out = append(out, *conv)
	}
	return out
}

// Get returns a copy of one entry
func (d *Directory) Get(conversationId string) (Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.index[conversationId]
	if !ok {
		return Conversation{}, false
	}
	return *conv, true
}

// Active returns the active conversation id, "" when none is open
func (d *Directory) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

func (d *Directory) setActive(conversationId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = conversationId
}

// Relabel recomputes every time label against the current clock
func (d *Directory) Relabel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for _, conv := range d.entries {
		conv.LastMessageLabel = TimeLabel(conv.LastMessageTime, now)
	}
}

func (d *Directory) total() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalLocked()
}

func (d *Directory) unreadOf(conversationId string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if conv, ok := d.index[conversationId]; ok {
		return conv.UnreadCount
	}
	return 0
}

func (d *Directory) totalLocked() int64 {
	var total int64
	for _, conv := range d.entries {
		total += conv.UnreadCount
	}
	return total
}

func (d *Directory) lookupOrCreate(a Activity) (*Conversation, *seqLog) {
	if conv, ok := d.index[a.ConversationId]; ok {
		return conv, d.seqs[a.ConversationId]
	}

	conv := &Conversation{
		ConversationId: a.ConversationId,
		Counterpart:    Counterpart{UserId: a.PeerId},
	}
	seen := newSeqLog(0)
	d.entries = append(d.entries, conv)
	d.index[conv.ConversationId] = conv
	d.seqs[conv.ConversationId] = seen
	return conv, seen
}

// advancePreview moves the preview to a unless the entry already shows a newer
// message. Unsequenced activities are local sends and always apply.
func (d *Directory) advancePreview(conv *Conversation, a Activity) {
	if a.Seq > 0 && a.Seq < conv.Seq {
		return
	}

	preview := a.Preview
	conv.LastMessage = &preview
	conv.LastMessageTime = a.OccurredAt
	conv.LastMessageLabel = TimeLabel(a.OccurredAt, d.now())
	if a.Seq > 0 {
		conv.Seq = a.Seq
	}
}

// commit must be called with mu held for writing. It releases mu and notifies
// subscribers with the total computed under that same lock. notifyMu is taken
// before mu is released so notifications cannot overtake each other.
func (d *Directory) commit() {
	total := d.totalLocked()
	d.notifyMu.Lock()
	d.mu.Unlock()
	defer d.notifyMu.Unlock()

	d.subsMu.Lock()
	subs := make([]func(int64), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.subsMu.Unlock()

	for _, fn := range subs {
		fn(total)
	}
}

func (d *Directory) subscribe(fn func(total int64)) func() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.subsMu.Lock()
		defer d.subsMu.Unlock()
		delete(d.subs, id)
	}
}
