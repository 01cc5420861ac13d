package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"marketplace-chat/config"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies the bearer tokens issued by the account service. Both
// the HTTP API and the socket namespaces go through ParseAccessToken.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{
		jwtSecret: []byte(cfg.Secret),
		accessTTL: time.Duration(cfg.ExpiryMin) * time.Minute,
	}
}

type AccessClaims struct {
	UserID uint `json:"id"`
	jwt.RegisteredClaims
}

// ResolvedUserID falls back to the registered "sub" claim for issuers that do not
// set "id".
func (c AccessClaims) ResolvedUserID() uint {
	if c.UserID != 0 {
		return c.UserID
	}
	id, err := strconv.ParseUint(c.RegisteredClaims.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, marketplace_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, marketplace_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, marketplace_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.ResolvedUserID() == 0 {
		return AccessClaims{}, marketplace_errors.ErrUnauthorized
	}

	return *claims, nil
}

// IssueAccessToken signs a token for userID. Production tokens come from the
// account service using the same secret; this is for tooling and tests.
func (s *AuthService) IssueAccessToken(userID uint) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, marketplace_errors.ErrInvalidInput):
		return 400
	case errors.Is(err, marketplace_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, marketplace_errors.ErrForbidden):
		return 403
	case errors.Is(err, marketplace_errors.ErrNotFound):
		return 404
	case errors.Is(err, marketplace_errors.ErrAlreadyExists), errors.Is(err, marketplace_errors.ErrConflict):
		return 409
	case errors.Is(err, marketplace_errors.ErrRateLimited):
		return 429
	case errors.Is(err, marketplace_errors.ErrServiceUnavailable):
		return 503
	default:
		return 500
	}
}

// ErrorCode is the machine readable code paired with HTTPStatus.
func ErrorCode(err error) string {
	switch HTTPStatus(err) {
	case 400:
		return "INVALID_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 429:
		return "RATE_LIMITED"
	case 503:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUserContext(ctx context.Context, userID uint) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	// mirrored under the logger key so request logs carry the user
	return context.WithValue(ctx, logger.UserIdKey, userID)
}

func UserIDFromContext(ctx context.Context) (uint, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok && userID != 0
}
