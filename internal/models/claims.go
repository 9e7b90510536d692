package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims - claims токена доступа к сессии рисования.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// ContextKey - тип ключей, которые middleware кладет в gin.Context.
type ContextKey string

const (
	// SessionIDKey - ключ, под которым хранится ID сессии из проверенного токена.
	SessionIDKey ContextKey = "session_id"
)
