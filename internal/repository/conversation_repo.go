package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/coachim/internal/entity"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// GetByOwnerAndConvId returns (nil, nil) when the owner has no row for the conversation.
func (r *ConversationRepo) GetByOwnerAndConvId(ctx context.Context, ownerId, conversationId string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND conversation_id = ?", ownerId, conversationId).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetUserConversationsWithSeq gets the owner's conversations with seq info, most recent first
func (r *ConversationRepo) GetUserConversationsWithSeq(ctx context.Context, ownerId string) ([]*entity.ConversationWithSeq, error) {
	var results []*entity.ConversationWithSeq

	err := r.db.WithContext(ctx).
		Table("conversations c").
		Select(`
			c.*,
			COALESCE(sc.max_seq, 0) as max_seq,
			COALESCE(su.read_seq, 0) as read_seq,
			GREATEST(0, COALESCE(sc.max_seq, 0) - COALESCE(su.read_seq, 0)) as unread_count
		`).
		Joins("LEFT JOIN seq_conversations sc ON sc.conversation_id = c.conversation_id").
		Joins("LEFT JOIN seq_users su ON su.user_id = c.owner_id AND su.conversation_id = c.conversation_id").
		Where("c.owner_id = ?", ownerId).
		Order("c.updated_at DESC").
		Scan(&results).Error

	if err != nil {
		return nil, err
	}
	return results, nil
}

// Update updates conversation settings
func (r *ConversationRepo) Update(ctx context.Context, ownerId, conversationId string, updates map[string]any) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("owner_id = ? AND conversation_id = ?", ownerId, conversationId).
		Updates(updates).Error
}

// EnsureSingleChatConversations upserts one row per party, each pointing at the other as peer,
// and bumps updated_at so the conversation sorts first for both.
func (r *ConversationRepo) EnsureSingleChatConversations(ctx context.Context, tx *gorm.DB, conversationId, userA, userB string) error {
	now := entity.NowUnixMilli()

	rows := []*entity.Conversation{
		{ConversationId: conversationId, OwnerId: userA, PeerUserId: userB, CreatedAt: now, UpdatedAt: now},
		{ConversationId: conversationId, OwnerId: userB, PeerUserId: userA, CreatedAt: now, UpdatedAt: now},
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"updated_at": now,
		}),
	}).Create(&rows).Error
}
