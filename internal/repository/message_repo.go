package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/pkg/constant"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create creates a new message inside tx
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	now := entity.NowUnixMilli()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return tx.WithContext(ctx).Create(msg).Error
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// PullMessages pulls messages in a conversation within seq range, ascending
func (r *MessageRepo) PullMessages(ctx context.Context, conversationId string, beginSeq, endSeq int64, limit int) ([]*entity.Message, error) {
	if limit <= 0 || limit > constant.MaxPullSize {
		limit = constant.MaxPullSize
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq >= ? AND seq <= ?", conversationId, beginSeq, endSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// PullMessagesBySeqList pulls messages by specific seq list
func (r *MessageRepo) PullMessagesBySeqList(ctx context.Context, conversationId string, seqList []int64) ([]*entity.Message, error) {
	if len(seqList) == 0 {
		return nil, nil
	}
	if len(seqList) > constant.MaxPullSize {
		seqList = seqList[:constant.MaxPullSize]
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq IN ?", conversationId, seqList).
		Order("seq ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetLatestMessages gets the latest N messages in a conversation, returned ascending
func (r *MessageRepo) GetLatestMessages(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	if limit <= 0 || limit > constant.MaxPullSize {
		limit = constant.DefaultHistorySize
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// GetByConvSeqs loads one message per (conversation_id, seq) pair, keyed by conversation id.
// Used to attach the last message to each conversation list row.
func (r *MessageRepo) GetByConvSeqs(ctx context.Context, convSeqs map[string]int64) (map[string]*entity.Message, error) {
	result := make(map[string]*entity.Message, len(convSeqs))

	pairs := make([][]any, 0, len(convSeqs))
	for convId, seq := range convSeqs {
		if seq > 0 {
			pairs = append(pairs, []any{convId, seq})
		}
	}
	if len(pairs) == 0 {
		return result, nil
	}

	var messages []*entity.Message
	if err := r.db.WithContext(ctx).Where("(conversation_id, seq) IN ?", pairs).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		result[m.ConversationId] = m
	}
	return result, nil
}
