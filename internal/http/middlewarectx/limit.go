package middlewarectx

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
)

const limiterTTL = 10 * time.Minute

// RateLimitMiddleware ограничивает частоту запросов отдельно для каждого
// аккаунта, а без аутентификации для каждого адреса клиента. Неактивные
// ограничители вытесняются из кеша.
func RateLimitMiddleware(log *slog.Logger, rps float64, burst int) func(http.Handler) http.Handler {
	limiters := cache.New(limiterTTL, 2*limiterTTL)

	limiterFor := func(key string) *rate.Limiter {
		if l, ok := limiters.Get(key); ok {
			return l.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Limit(rps), burst)
		if err := limiters.Add(key, l, cache.DefaultExpiration); err != nil {
			// Ограничитель уже создан параллельным запросом.
			if existing, ok := limiters.Get(key); ok {
				return existing.(*rate.Limiter)
			}
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			l := limiterFor(key)
			if !l.Allow() {
				log.Warn("too many requests", slog.String("client", key))
				w.Header().Set("Retry-After", "1")
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			limiters.SetDefault(key, l)
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := TelegramIDFrom(r.Context()); ok {
		return "tg:" + strconv.FormatInt(id, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
