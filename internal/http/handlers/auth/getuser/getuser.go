// Package getuser отдаёт профиль текущего пользователя.
package getuser

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/policy-summarizer/internal/entitlement"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// Service возвращает профиль.
type Service interface {
	Profile(ctx context.Context, userID string) (*models.Profile, error)
}

// Handler обрабатывает запрос профиля.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Профиль пользователя
// @Description Возвращает профиль без хэша пароля вместе со статусом подписки.
// @Tags Auth
// @Produce  json
// @Success 200 {object} models.Profile
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /auth/getuser [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.getuser"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	profile, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, entitlement.ErrUserNotFound) || errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.UserID(userID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to load profile", sl.UserID(userID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, profile)
}
