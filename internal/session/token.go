package session

import (
	"errors"
	"fmt"
	"time"

	"story-canvas/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenIssuer выпускает и проверяет токены доступа к сессии (HS256, claim sid).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewTokenIssuer создает TokenIssuer. Пустой секрет - ошибка.
func NewTokenIssuer(secret string, ttl time.Duration, logger *zap.Logger) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("session JWT secret cannot be empty")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("TokenIssuer"),
	}, nil
}

// Issue выпускает токен для сессии.
func (i *TokenIssuer) Issue(sessionID string) (string, error) {
	now := i.now()
	claims := models.SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Subject:   sessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок токена и возвращает его claims.
func (i *TokenIssuer) Verify(tokenString string) (*models.SessionClaims, error) {
	log := i.logger.With(zap.String("tokenSnippet", tokenSnippet(tokenString)))
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			log.Warn("Unexpected signing method", zap.Any("alg", token.Header["alg"]))
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		log.Warn("Failed to parse or verify session token", zap.Error(err))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, models.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, models.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if claims.SessionID == "" {
		log.Warn("Session token missing sid")
		return nil, fmt.Errorf("%w: sid missing", models.ErrTokenInvalid)
	}
	return claims, nil
}

// tokenSnippet возвращает безопасную для логгирования часть токена.
func tokenSnippet(tokenString string) string {
	limit := 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
