package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/storage"
)

// ErrUnauthenticated rejects a connection attempt. The wrapped cause is
// logged server-side only; callers must not forward it to clients.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Identity is the result of a successful credential check.
type Identity struct {
	UserID string
	Role   models.Role
}

// RevocationChecker reports whether a raw token has been revoked.
// Backed by Redis in production; nil disables the check.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Verifier validates bearer tokens for the realtime layer. A structurally
// valid token is not enough: the referenced user must still exist and be
// active, and the token must not appear in the revocation set.
type Verifier struct {
	secret  []byte
	users   storage.UserStore
	revoked RevocationChecker
	timeout time.Duration
}

func NewVerifier(secret string, users storage.UserStore, revoked RevocationChecker, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{secret: []byte(secret), users: users, revoked: revoked, timeout: timeout}
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: malformed claims", ErrUnauthenticated)
	}
	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("%w: userId claim missing", ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if v.revoked != nil {
		revoked, err := v.revoked.IsRevoked(ctx, tokenString)
		if err != nil {
			return Identity{}, fmt.Errorf("revocation check: %w", err)
		}
		if revoked {
			return Identity{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
		}
	}

	user, err := v.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNoMatch) {
		return Identity{}, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("user lookup: %w", err)
	}
	if user.Status != models.UserActive {
		return Identity{}, fmt.Errorf("%w: account is not active", ErrUnauthenticated)
	}
	if !user.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, user.Role)
	}
	return Identity{UserID: user.ID, Role: user.Role}, nil
}
