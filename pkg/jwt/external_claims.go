package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/coachim/common"
	"github.com/mbeoliero/coachim/pkg/errcode"
)

// ExternalClaims are issued by the coaching platform itself.
// UserId is the platform's numeric id; it is mapped to an IM user id via common.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseExternalToken parses a platform token and converts it to IM Claims.
// defaultRole applies when the token carries no role.
func ParseExternalToken(tokenString, secret, defaultRole string, defaultPlatformId int) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	roleName := extClaims.Role
	if roleName == "" {
		roleName = defaultRole
	}
	role, err := common.ParseRole(roleName)
	if err != nil {
		return nil, errcode.ErrRoleInvalid.Wrap(err)
	}

	actor := common.Actor{Id: extClaims.UserId, Role: role}
	imUserId, err := actor.ToIMUserId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		UserId:           imUserId,
		Role:             string(role),
		PlatformId:       defaultPlatformId,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
