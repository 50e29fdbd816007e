package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbeoliero/coachim/common"
	"github.com/mbeoliero/coachim/internal/config"
	"github.com/mbeoliero/coachim/internal/entity"
	"github.com/mbeoliero/coachim/internal/repository"
	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/jwt"
)

// SessionKicker closes live connections that were opened with a superseded token.
type SessionKicker interface {
	KickTokens(ctx context.Context, userId string, platformId int, tokens []string)
}

// AuthService handles authentication logic
type AuthService struct {
	userRepo   *repository.UserRepo
	cfg        *config.Config
	tokenStore *jwt.TokenStore
	kicker     SessionKicker
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo *repository.UserRepo, cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		cfg:        cfg,
		tokenStore: jwt.NewTokenStore(rdb, cfg.JWT.ExpireHours),
	}
}

// SetKicker sets the live-connection kicker
func (s *AuthService) SetKicker(kicker SessionKicker) {
	s.kicker = kicker
}

// RegisterRequest registers a platform member. The IM user id is derived from
// the platform id and role, e.g. external_id=42, role=dietician => "di__42".
type RegisterRequest struct {
	ExternalId int64  `json:"external_id"`
	Role       string `json:"role"`
	Nickname   string `json:"nickname"`
	Password   string `json:"password"`
	Avatar     string `json:"avatar,omitempty"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string           `json:"token"`
	UserInfo *entity.UserInfo `json:"user_info"`
}

// Register registers a new user
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.UserInfo, error) {
	role, err := common.ParseRole(req.Role)
	if err != nil {
		return nil, errcode.ErrRoleInvalid
	}
	if req.ExternalId <= 0 || req.Password == "" {
		return nil, errcode.ErrInvalidParam
	}

	actor := common.Actor{Id: req.ExternalId, Role: role}
	userId, err := actor.ToIMUserId()
	if err != nil {
		return nil, errcode.ErrRoleInvalid.Wrap(err)
	}

	exists, err := s.userRepo.Exists(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "check user exists failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if exists {
		return nil, errcode.ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.CtxError(ctx, "hash password failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	user := &entity.User{
		Id:       userId,
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
		Role:     string(role),
		Password: string(hashedPassword),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		log.CtxError(ctx, "create user failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "user registered: user_id=%s, role=%s", userId, role)
	return user.ToUserInfo(), nil
}

// Login authenticates a user and returns a token. Older tokens on the same platform are kicked.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetById(ctx, req.UserId)
	if err != nil {
		log.CtxError(ctx, "get user failed: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrInternalServer
	}
	if user == nil {
		return nil, errcode.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errcode.ErrPasswordWrong
	}

	token, err := jwt.GenerateToken(user.Id, user.Role, req.PlatformId, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		log.CtxError(ctx, "generate token failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	if err := s.tokenStore.StoreToken(ctx, user.Id, req.PlatformId, token); err != nil {
		log.CtxError(ctx, "store token failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	kicked, err := s.tokenStore.KickOtherTokens(ctx, user.Id, req.PlatformId, token)
	if err != nil {
		log.CtxWarn(ctx, "kick other tokens failed: %v", err)
	} else if len(kicked) > 0 {
		log.CtxInfo(ctx, "kicked %d tokens for user_id=%s, platform_id=%d", len(kicked), user.Id, req.PlatformId)
		if s.kicker != nil {
			s.kicker.KickTokens(ctx, user.Id, req.PlatformId, kicked)
		}
	}

	log.CtxInfo(ctx, "user logged in: user_id=%s, platform_id=%d", user.Id, req.PlatformId)
	return &LoginResponse{
		Token:    token,
		UserInfo: user.ToUserInfo(),
	}, nil
}

// Authenticate resolves a bearer token into claims. Native tokens must still be live in
// the token store; platform tokens are accepted when external JWT is enabled.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, s.cfg.JWT.Secret)
	if err != nil {
		if !s.cfg.ExternalJWT.Enabled {
			return nil, err
		}
		return jwt.ParseExternalToken(token, s.cfg.ExternalJWT.Secret, s.cfg.ExternalJWT.DefaultRole, s.cfg.ExternalJWT.DefaultPlatformId)
	}

	valid, err := s.tokenStore.IsTokenValid(ctx, claims.UserId, claims.PlatformId, token)
	if err != nil {
		// Redis unavailable: the signature check alone still holds
		log.CtxWarn(ctx, "check token status failed: %v", err)
		return claims, nil
	}
	if !valid {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// Logout invalidates a user's token
func (s *AuthService) Logout(ctx context.Context, userId string, platformId int, token string) error {
	if err := s.tokenStore.InvalidateToken(ctx, userId, platformId, token); err != nil {
		log.CtxError(ctx, "invalidate token failed: %v", err)
		return errcode.ErrInternalServer
	}
	if s.kicker != nil {
		s.kicker.KickTokens(ctx, userId, platformId, []string{token})
	}
	log.CtxInfo(ctx, "user logged out: user_id=%s, platform_id=%d", userId, platformId)
	return nil
}
