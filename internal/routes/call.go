package routes

import (
	"github.com/labstack/echo/v4"

	"triage-system/internal/controllers"
)

// Вебхук телефонии. Провайдер шлёт исходы звонков сюда.
func runCallRouter(api *echo.Group, ctrl *controllers.CallController) {
	api.POST("/calls/events", ctrl.HandleCallEvent)
}
