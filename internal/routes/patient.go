package routes

import (
	"github.com/labstack/echo/v4"

	"triage-system/internal/controllers"
)

func runPatientRouter(api *echo.Group, ctrl *controllers.PatientController) {
	api.GET("/patients", ctrl.GetPatients)
	api.GET("/patients/:id", ctrl.FindPatient)
	api.POST("/patients/import", ctrl.ImportPatients)
}
