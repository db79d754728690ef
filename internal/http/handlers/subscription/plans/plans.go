// Package plans реализует HTTP-обработчик каталога тарифов.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/habit-tracker/internal/http/response"
	"github.com/magabrotheeeer/habit-tracker/internal/models"
)

// Handler обрабатывает запрос тарифов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает источник тарифов.
type Service interface {
	ListPlans() []models.Plan
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Тарифы подписки
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(h.service.ListPlans()))
}
