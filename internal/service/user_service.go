package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/repository"
	"github.com/mbeoliero/coachim/pkg/errcode"
)

// UserService handles user-related business logic
type UserService struct {
	userRepo *repository.UserRepo
}

// NewUserService creates a new UserService
func NewUserService(userRepo *repository.UserRepo) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// GetUserInfo gets user info by Id
func (s *UserService) GetUserInfo(ctx context.Context, userId string) (*entity.UserInfo, error) {
	user, err := s.userRepo.GetById(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	if user == nil {
		return nil, errcode.ErrUserNotFound
	}
	return user.ToUserInfo(), nil
}
