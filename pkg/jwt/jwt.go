package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/coachim/pkg/errcode"
)

const issuer = "coachim"

// Claims represents JWT claims
type Claims struct {
	UserId     string `json:"user_id"`
	Role       string `json:"role"`
	PlatformId int    `json:"platform_id"`
	jwt.RegisteredClaims
}

// GenerateToken generates a new JWT token
func GenerateToken(userId, role string, platformId int, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId:     userId,
		Role:       role,
		PlatformId: platformId,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errcode.ErrTokenInvalid
}

// ValidateToken validates token and checks if userId and platformId match
func ValidateToken(tokenString, secret, expectedUserId string, expectedPlatformId int) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}

	if claims.UserId != expectedUserId || claims.PlatformId != expectedPlatformId {
		return nil, errcode.ErrTokenMismatch
	}

	return claims, nil
}
