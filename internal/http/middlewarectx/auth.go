// Package middlewarectx содержит HTTP middleware: проверку JWT с созданием
// пользователя при первом обращении, ограничение частоты запросов и проверку
// токена внутренних эндпоинтов.
//
// JWTMiddleware проверяет токен в заголовке Authorization и в случае успеха
// добавляет в контекст идентификатор Telegram-аккаунта. При ошибке проверки
// возвращает HTTP 401 Unauthorized.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/patrickmn/go-cache"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/jwt"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// TelegramID ключ идентификатора аккаунта в контексте.
const TelegramID Key = "telegram_id"

// knownUserTTL время, в течение которого повторный upsert пользователя не выполняется.
const knownUserTTL = 10 * time.Minute

// TokenParser проверяет JWT.
type TokenParser interface {
	ParseToken(token string) (*jwt.Claims, error)
}

// UserEnsurer создает пользователя при первом обращении.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, telegramID int64, displayName string) (*models.User, error)
}

// WithTelegramID кладет идентификатор аккаунта в контекст.
func WithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramID, telegramID)
}

// TelegramIDFrom достает идентификатор аккаунта из контекста.
func TelegramIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TelegramID).(int64)
	return id, ok && id > 0
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
func JWTMiddleware(tokens TokenParser, users UserEnsurer, log *slog.Logger) func(http.Handler) http.Handler {
	known := cache.New(knownUserTTL, 2*knownUserTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.ParseToken(tokenStr)
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			telegramID, err := claims.TelegramID()
			if err != nil {
				log.Warn("token without account id", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			key := strconv.FormatInt(telegramID, 10)
			if _, seen := known.Get(key); !seen {
				if _, err := users.EnsureUser(r.Context(), telegramID, claims.DisplayName); err != nil {
					log.Error("failed to ensure user", slog.Int64("telegram_id", telegramID), sl.Err(err))
					response.WriteError(w, r, err)
					return
				}
				known.SetDefault(key, struct{}{})
			}

			next.ServeHTTP(w, r.WithContext(WithTelegramID(r.Context(), telegramID)))
		})
	}
}
