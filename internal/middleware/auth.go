// Package middleware содержит HTTP middleware сервиса комиссий.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityKey contextKey = "identity"

// Роли, которые проверяются по claim role.
const (
	RoleAdmin    = "admin"
	RoleReferrer = "referrer"
)

const clockSkew = time.Minute

// Claims: содержимое bearer-токена. Subject хранит идентификатор апортёра.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity: проверенная личность вызывающего.
type Identity struct {
	Role       string
	ReferrerID int64
}

// Authenticator проверяет bearer-токены, подписанные HMAC-ключом.
// Выдача токенов происходит вне сервиса; здесь только проверка.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator создаёт Authenticator с указанным секретом.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

// Require пропускает запрос, только если токен валиден и его роль совпадает с role.
func (a *Authenticator) Require(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			id, err := a.Verify(token)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if id.Role != role {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Verify разбирает токен и возвращает личность вызывающего.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{}, errors.New("auth secret not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	id := Identity{Role: claims.Role}
	switch claims.Role {
	case RoleAdmin:
	case RoleReferrer:
		refID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || refID <= 0 {
			return Identity{}, errors.New("referrer token without valid subject")
		}
		id.ReferrerID = refID
	default:
		return Identity{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return id, nil
}

// Issue подписывает токен. Используется в тестах и утилитах выдачи.
func (a *Authenticator) Issue(role string, referrerID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if referrerID > 0 {
		claims.Subject = strconv.FormatInt(referrerID, 10)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// GetIdentityFromContext извлекает личность вызывающего из контекста запроса.
func GetIdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity кладёт личность в контекст. Нужен обработчикам в тестах.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
