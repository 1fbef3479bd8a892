// Package getkey отдаёт публичный ключ шлюза и прайс-лист для окна оплаты.
package getkey

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// Response данные для инициализации окна оплаты.
type Response struct {
	Key   string        `json:"key" example:"rzp_test_xxx"`
	Plans []models.Plan `json:"plans"`
}

// Service возвращает публичные параметры оплаты.
type Service interface {
	PublicKey() string
	Plans() []models.Plan
}

// Handler отдаёт публичный ключ.
type Handler struct {
	service Service
}

// New создает новый экземпляр Handler.
func New(service Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP godoc
// @Summary Публичный ключ шлюза
// @Description Возвращает публичный идентификатор ключа шлюза и доступные тарифы. Секрет не раскрывается.
// @Tags Payments
// @Produce  json
// @Success 200 {object} Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /payment/get-key [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{
		Key:   h.service.PublicKey(),
		Plans: h.service.Plans(),
	})
}
