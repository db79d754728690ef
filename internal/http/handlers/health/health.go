// Package health реализует проверку готовности сервиса и его зависимостей.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/lib/sl"
)

// Pinger зависимость, доступность которой проверяется.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler проверяет зависимости.
type Handler struct {
	log     *slog.Logger
	deps    map[string]Pinger
	timeout time.Duration
}

// Status состояние зависимостей.
type Status struct {
	Checks map[string]string `json:"checks"`
	Failed []string          `json:"failed,omitempty"`
}

// New создает новый Handler.
func New(log *slog.Logger, deps map[string]Pinger) *Handler {
	return &Handler{
		log:     log,
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Ops
// @Produce  json
// @Success 200 {object} response.Response{data=Status}
// @Failure 503 {object} response.Response{data=Status}
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	st := Status{Checks: make(map[string]string, len(h.deps))}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.log.Warn("dependency is not ready", slog.String("dependency", name), sl.Err(err))
			st.Checks[name] = "down"
			st.Failed = append(st.Failed, name)
			continue
		}
		st.Checks[name] = "ok"
	}
	sort.Strings(st.Failed)

	if len(st.Failed) > 0 {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "not ready", Data: st})
		return
	}
	render.JSON(w, r, response.OKWithData(st))
}
