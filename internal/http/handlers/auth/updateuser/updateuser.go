// Package updateuser обновляет имя и телефон пользователя.
package updateuser

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/policy-summarizer/internal/http/middlewarectx"
	"github.com/magabrotheeeer/policy-summarizer/internal/http/response"
	"github.com/magabrotheeeer/policy-summarizer/internal/lib/sl"
	"github.com/magabrotheeeer/policy-summarizer/internal/models"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// Request новые данные профиля.
type Request struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phonenumber" validate:"omitempty,min=7,max=20"`
}

// Response повторяет форму ответа прежнего API.
type Response struct {
	Success bool            `json:"success"`
	User    *models.Profile `json:"user"`
}

// Service обновляет профиль.
type Service interface {
	UpdateProfile(ctx context.Context, userID, name, phone string) (*models.Profile, error)
}

// Handler обрабатывает обновление профиля.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Обновить профиль
// @Description Меняет имя и телефон пользователя, сбрасывает кэш профиля.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Имя и телефон"
// @Success 200 {object} Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 409 {object} response.ErrorResponse "Телефон уже занят"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/updateuser [put]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.updateuser"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), userID, req.Name, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, storage.ErrUserExists):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("phone number already in use"))
		default:
			log.Error("failed to update profile", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("profile updated", sl.UserID(userID))
	render.JSON(w, r, Response{Success: true, User: profile})
}
