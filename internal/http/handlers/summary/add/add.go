// Package add сохраняет конспект документа. Доступен только с активной подпиской.
package add

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
	"github.com/magabrotheeeer/policy-summarizer/internal/services/summary"
	"github.com/magabrotheeeer/policy-summarizer/internal/storage"
)

// Request конспект.
type Request struct {
	SummaryText string `json:"summaryText" validate:"required,max=100000"`
	WordLimit   int    `json:"wordLimit" validate:"omitempty,gt=0,max=10000"`
	Language    string `json:"language" validate:"omitempty,max=32"`
}

// Service сохраняет конспекты.
type Service interface {
	Add(ctx context.Context, userID string, in summary.Input) (*models.Summary, error)
}

// Handler обрабатывает сохранение конспекта.
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
// @Summary Сохранить конспект
// @Description Сохраняет конспект документа. Требует активной подписки.
// @Tags Summary
// @Accept  json
// @Produce  json
// @Param request body Request true "Конспект"
// @Success 201 {object} models.Summary
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Требуется оплата"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /summary/add [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.summary.add"
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

	saved, err := h.service.Add(r.Context(), userID, summary.Input{
		Text:      req.SummaryText,
		WordLimit: req.WordLimit,
		Language:  req.Language,
	})
	if err != nil {
		switch {
		case errors.Is(err, summary.ErrEmptySummary):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("field SummaryText is a required field"))
		case errors.Is(err, storage.ErrUserNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to save summary", sl.UserID(userID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("summary saved", sl.UserID(userID), slog.String("summary_id", saved.ID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, saved)
}
