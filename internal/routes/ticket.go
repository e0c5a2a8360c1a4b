package routes

import (
	"github.com/labstack/echo/v4"

	"triage-system/internal/controllers"
)

func runTicketRouter(api *echo.Group, ctrl *controllers.TicketController) {
	api.POST("/tickets", ctrl.CreateTicket)
	api.GET("/tickets", ctrl.GetTickets)
	api.GET("/tickets/:id", ctrl.FindTicket)

	// Очереди и дашборд
	api.GET("/queue", ctrl.GetQueue)
	api.GET("/queue/next", ctrl.GetNextTicket)
	api.GET("/queue/stats", ctrl.GetStats)

	// Переходы жизненного цикла
	api.POST("/tickets/:id/assign", ctrl.AssignTicket)
	api.POST("/tickets/:id/complete", ctrl.CompleteTicket)
	api.POST("/tickets/:id/fail", ctrl.FailTicket)
	api.POST("/tickets/:id/cancel", ctrl.CancelTicket)
	api.POST("/tickets/:id/requeue", ctrl.RequeueTicket)
}
