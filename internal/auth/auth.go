package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ariefcatur/go-coupon-shop.git/internal/redisx"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// SessionStore keeps admin session tokens server-side; the token handed to
// the client is opaque.
type SessionStore interface {
	Create(ctx context.Context, username string, ttl time.Duration) (string, error)
	Validate(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type RedisSessions struct {
	Client *redis.Client
}

func (s *RedisSessions) Create(ctx context.Context, username string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	key := fmt.Sprintf(redisx.KeyAdminSession, token)
	if err := s.Client.Set(ctx, key, username, ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisSessions) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	username, err := s.Client.Get(ctx, fmt.Sprintf(redisx.KeyAdminSession, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	return username, nil
}

func (s *RedisSessions) Delete(ctx context.Context, token string) error {
	return s.Client.Del(ctx, fmt.Sprintf(redisx.KeyAdminSession, token)).Err()
}

// Admin authenticates the single configured admin actor. The password is
// supplied as a bcrypt hash via config, never in the clear.
type Admin struct {
	Username     string
	PasswordHash string
	Sessions     SessionStore
	SessionTTL   time.Duration
}

func (a *Admin) Login(ctx context.Context, username, password string) (string, error) {
	if a.PasswordHash == "" || username != a.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.Sessions.Create(ctx, username, a.SessionTTL)
}

func (a *Admin) Logout(ctx context.Context, token string) error {
	return a.Sessions.Delete(ctx, token)
}

// Middleware guards the admin routes with a Bearer session token.
func (a *Admin) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.Sessions.Validate(r.Context(), BearerToken(r)); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
