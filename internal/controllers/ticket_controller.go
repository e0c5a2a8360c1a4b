package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/services"
	apperrors "triage-system/pkg/errors"
	"triage-system/pkg/utils"
)

type TicketController struct {
	ticketService services.TicketServiceInterface
	logger        *zap.Logger
}

func NewTicketController(ticketService services.TicketServiceInterface, logger *zap.Logger) *TicketController {
	return &TicketController{ticketService: ticketService, logger: logger}
}

func (c *TicketController) CreateTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var payload dto.CreateTicketDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger,
		)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.CreateTicket(reqCtx, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет успешно создан", http.StatusCreated)
}

func (c *TicketController) FindTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.FindTicket(reqCtx, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет найден", http.StatusOK)
}

func (c *TicketController) GetTickets(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var filter dto.TicketFilterDTO
	if err := ctx.Bind(&filter); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверные параметры фильтра", err, nil),
			c.logger,
		)
	}
	if err := ctx.Validate(&filter); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	list, total, err := c.ticketService.GetTickets(reqCtx, filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, map[string]interface{}{
		"list":  list,
		"total": total,
	}, "Список тикетов успешно получен", http.StatusOK)
}

// GetQueue - живой снимок очереди с позициями; lane приходит в query
// (по умолчанию основная).
func (c *TicketController) GetQueue(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	lane := ctx.QueryParam("lane")
	if lane == "" {
		lane = "QUEUE"
	}

	res, err := c.ticketService.GetQueue(reqCtx, lane)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Снимок очереди получен", http.StatusOK)
}

func (c *TicketController) GetNextTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	res, err := c.ticketService.GetNextTicket(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if res == nil {
		return utils.SuccessResponse(ctx, struct{}{}, "Очереди пусты", http.StatusOK)
	}
	return utils.SuccessResponse(ctx, res, "Следующий тикет", http.StatusOK)
}

func (c *TicketController) GetStats(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	res, err := c.ticketService.GetStats(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Статистика очереди получена", http.StatusOK)
}

func (c *TicketController) AssignTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.AssignTicketDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger,
		)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.AssignTicket(reqCtx, id, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет взят в работу", http.StatusOK)
}

func (c *TicketController) CompleteTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.CompleteTicketDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger,
		)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.CompleteTicket(reqCtx, id, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет успешно решён", http.StatusOK)
}

func (c *TicketController) FailTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.FailTicketDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверное тело запроса", err, nil),
			c.logger,
		)
	}

	res, err := c.ticketService.FailTicket(reqCtx, id, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Неудачный дозвон зафиксирован", http.StatusOK)
}

func (c *TicketController) CancelTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.CancelTicket(reqCtx, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет отменён", http.StatusOK)
}

func (c *TicketController) RequeueTicket(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := parseTicketID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.RequeueTicket(reqCtx, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет возвращён в основную очередь", http.StatusOK)
}

func parseTicketID(ctx echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, apperrors.NewHttpError(
			http.StatusBadRequest,
			"Неверный ID тикета",
			err,
			map[string]interface{}{"param": ctx.Param("id")},
		)
	}
	return id, nil
}
