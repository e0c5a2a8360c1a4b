package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/services"
	apperrors "triage-system/pkg/errors"
	"triage-system/pkg/utils"
)

// CallController принимает вебхуки телефонии об исходах звонков.
type CallController struct {
	callService *services.CallService
	logger      *zap.Logger
}

func NewCallController(callService *services.CallService, logger *zap.Logger) *CallController {
	return &CallController{callService: callService, logger: logger}
}

func (c *CallController) HandleCallEvent(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var payload dto.CallEventDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело вебхука", err, nil),
			c.logger,
		)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.callService.HandleCallEvent(reqCtx, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Исход звонка обработан", http.StatusOK)
}
