package utils

import (
	"errors"
	"net/http"

	apperrors "triage-system/pkg/errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HttpResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	response := &HttpResponse{
		Status:  true,
		Body:    body,
		Message: message,
	}
	return ctx.JSON(code, response)
}

// kindToHTTPStatus переводит вид доменной ошибки движка в HTTP-код,
// чтобы фронтенд мог отличить not-found от conflict и bad-request.
func kindToHTTPStatus(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindInvalidState:
		return http.StatusUnprocessableEntity
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func ErrorResponse(ctx echo.Context, err error, logger *zap.Logger) error {
	message := "Внутренняя ошибка сервера"
	code := http.StatusInternalServerError

	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = httpErr.Message
		logger.Warn("Ошибка запроса",
			zap.Int("code", code),
			zap.String("message", message),
			zap.Error(httpErr.Err),
			zap.Any("context", httpErr.Context),
		)
	} else if kind, ok := apperrors.KindOf(err); ok {
		code = kindToHTTPStatus(kind)
		message = err.Error()
		logger.Warn("Доменная ошибка",
			zap.String("kind", string(kind)),
			zap.String("message", message),
		)
	} else if errors.Is(err, apperrors.ErrNotFound) {
		code = http.StatusNotFound
		message = err.Error()
	} else {
		logger.Error("Необработанная ошибка", zap.Error(err))
	}

	response := &HttpResponse{
		Status:  false,
		Body:    struct{}{},
		Message: message,
	}
	return ctx.JSON(code, response)
}
