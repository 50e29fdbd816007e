package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/coachim/pkg/errcode"
	"github.com/mbeoliero/coachim/pkg/jwt"
	"github.com/mbeoliero/coachim/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
	// PlatformIdKey is the context key for platform Id
	PlatformIdKey = "platform_id"
	// RoleKey is the context key for the caller's role
	RoleKey = "role"
	// TokenKey is the context key for the raw bearer token
	TokenKey = "token"
)

// Authenticator resolves a bearer token into claims
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
}

// JWTAuth is the JWT authentication middleware
func JWTAuth(auth Authenticator) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := auth.Authenticate(ctx, tokenString)
		if err != nil {
			log.CtxDebug(ctx, "authenticate failed: %v", err)
			response.ErrorWithCode(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)
		c.Set(RoleKey, claims.Role)
		c.Set(TokenKey, tokenString)

		c.Next(ctx)
	}
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) string {
	if v, ok := c.Get(UserIdKey); ok {
		return v.(string)
	}
	return ""
}

// GetPlatformId gets platform Id from context
func GetPlatformId(c *app.RequestContext) int {
	if v, ok := c.Get(PlatformIdKey); ok {
		return v.(int)
	}
	return 0
}

// GetRole gets the caller's role from context
func GetRole(c *app.RequestContext) string {
	return c.GetString(RoleKey)
}

// GetToken gets the bearer token from context
func GetToken(c *app.RequestContext) string {
	return c.GetString(TokenKey)
}
