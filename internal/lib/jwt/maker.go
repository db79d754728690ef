// Package jwt выпускает и проверяет токены доступа к API трекера привычек.
//
// Идентичность пользователя это его telegram id, он хранится в поле sub.
package jwt

import (
	"time"
)

// Maker выпускает и разбирает токены.
type Maker interface {
	GenerateToken(telegramID int64, displayName string) (string, error)
	ParseToken(tokenStr string) (*Claims, error)
}

// MakerImpl подписывает токены HS256 общим секретом.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl с секретом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
