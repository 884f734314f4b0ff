// Package auth — проверка административного токена.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Gate проверяет заголовок Authorization административных запросов.
type Gate struct {
	secret     []byte
	production bool
}

// NewGate создаёт Gate.
//
// Если secret пуст, в production доступ закрыт для всех запросов,
// в остальных окружениях открыт.
func NewGate(secret string, production bool) *Gate {
	return &Gate{secret: []byte(secret), production: production}
}

// Authorize проверяет значение заголовка Authorization ("Bearer <token>").
func (g *Gate) Authorize(header string) bool {
	if len(g.secret) == 0 {
		return !g.production
	}

	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return false
	}

	// Длина токена не секрет.
	if len(token) != len(g.secret) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), g.secret) == 1
}

// Open возвращает true, если Gate пропускает запросы без токена.
func (g *Gate) Open() bool {
	return len(g.secret) == 0 && !g.production
}

// Middleware пропускает запрос дальше только после Authorize.
// deny пишет ответ отказа.
func (g *Gate) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Authorize(r.Header.Get("Authorization")) {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
