package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"triage-system/internal/repositories"
	"triage-system/internal/services"
	apperrors "triage-system/pkg/errors"
	"triage-system/pkg/utils"
)

type PatientController struct {
	patientRepository repositories.PatientRepositoryInterface
	importService     *services.PatientImportService
	logger            *zap.Logger
}

func NewPatientController(
	patientRepository repositories.PatientRepositoryInterface,
	importService *services.PatientImportService,
	logger *zap.Logger,
) *PatientController {
	return &PatientController{
		patientRepository: patientRepository,
		importService:     importService,
		logger:            logger,
	}
}

func (c *PatientController) GetPatients(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	limit, _ := strconv.ParseUint(ctx.QueryParam("limit"), 10, 64)
	offset, _ := strconv.ParseUint(ctx.QueryParam("offset"), 10, 64)
	if limit == 0 {
		limit = 50
	}

	list, total, err := c.patientRepository.GetPatients(reqCtx, limit, offset)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, map[string]interface{}{
		"list":  list,
		"total": total,
	}, "Список пациентов успешно получен", http.StatusOK)
}

func (c *PatientController) FindPatient(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Неверный ID пациента", err, nil),
			c.logger,
		)
	}

	res, err := c.patientRepository.FindPatient(reqCtx, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Пациент найден", http.StatusOK)
}

// ImportPatients принимает Excel-файл регистратуры через multipart-форму.
func (c *PatientController) ImportPatients(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Поле 'file' с Excel-файлом обязательно", err, nil),
			c.logger,
		)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "patients-*"+filepath.Ext(fileHeader.Filename))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.ReadFrom(src); err != nil {
		tmp.Close()
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	tmp.Close()

	res, err := c.importService.ImportFromFile(reqCtx, tmp.Name())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Импорт пациентов завершён", http.StatusOK)
}
