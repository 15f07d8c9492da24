package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imoes/agora/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// UserLookup resolves a token subject to a user record.
type UserLookup interface {
	UserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// Authenticator validates externally issued HS256 tokens whose subject
// is the user id, then resolves the user through the directory.
type Authenticator struct {
	secret []byte
	users  UserLookup
}

func NewAuthenticator(secret string, users UserLookup) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users}
}

// Authenticate returns the user a valid token belongs to. Expired or
// tampered tokens and tokens for unknown users all come back as
// ErrInvalidToken; the caller cannot tell the cases apart, on purpose.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := a.users.UserByID(ctx, domain.UserID(claims.Subject))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	return user, nil
}
