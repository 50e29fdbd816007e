package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/coachim/internal/entity"
)

// UserRepo is the repository for user operations
type UserRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewUserRepo creates a new UserRepo
func NewUserRepo(db *gorm.DB, rdb *redis.Client) *UserRepo {
	return &UserRepo{db: db, rdb: rdb}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetById returns (nil, nil) when the user does not exist.
func (r *UserRepo) GetById(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIds loads users keyed by id; missing ids are absent from the map.
func (r *UserRepo) GetByIds(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	result := make(map[string]*entity.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []*entity.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.Id] = u
	}
	return result, nil
}

// Exists checks if user exists
func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
