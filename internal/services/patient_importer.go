package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"triage-system/internal/entities"
	"triage-system/internal/repositories"
	apperrors "triage-system/pkg/errors"
)

// PatientImportService грузит картотеку пациентов из Excel-выгрузки
// регистратуры. Шапка таблицы ищется по содержимому, потому что выгрузки
// приходят с разным числом служебных строк сверху.
type PatientImportService struct {
	patientRepository repositories.PatientRepositoryInterface
	logger            *zap.Logger
}

func NewPatientImportService(patientRepository repositories.PatientRepositoryInterface, logger *zap.Logger) *PatientImportService {
	return &PatientImportService{patientRepository: patientRepository, logger: logger}
}

// ImportResult - итог импорта одного файла.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (s *PatientImportService) ImportFromFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	var result ImportResult

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			s.logger.Warn("Не удалось прочитать лист", zap.String("sheet", sheet), zap.Error(err))
			continue
		}

		fioIdx, phoneIdx, headerRow := findPatientHeader(rows)
		if headerRow == -1 {
			continue
		}

		for i := headerRow + 1; i < len(rows); i++ {
			row := rows[i]
			fio := safeCell(row, fioIdx)
			phone := normalizePhone(safeCell(row, phoneIdx))
			if fio == "" || phone == "" {
				result.Skipped++
				continue
			}

			if _, err := s.patientRepository.UpsertPatient(ctx, entities.Patient{Fio: fio, Phone: phone}); err != nil {
				s.logger.Warn("Пациент не импортирован",
					zap.Int("row", i+1),
					zap.String("fio", fio),
					zap.Error(err),
				)
				result.Skipped++
				continue
			}
			result.Imported++
		}
	}

	if result.Imported == 0 && result.Skipped == 0 {
		return result, apperrors.NewValidationError(
			"не найдена шапка таблицы: нужны колонки с ФИО и телефоном")
	}

	s.logger.Info("Импорт пациентов завершён",
		zap.String("file", path),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// findPatientHeader ищет строку шапки: нужна колонка с ФИО и колонка с
// телефоном. Возвращает индексы колонок и номер строки шапки (-1 если нет).
func findPatientHeader(rows [][]string) (fioIdx, phoneIdx, headerRow int) {
	fioIdx, phoneIdx, headerRow = -1, -1, -1

	for rIdx, row := range rows {
		rowStr := strings.ToLower(strings.Join(row, "|"))
		if !strings.Contains(rowStr, "фио") && !strings.Contains(rowStr, "пациент") {
			continue
		}
		if !strings.Contains(rowStr, "телефон") && !strings.Contains(rowStr, "тел.") {
			continue
		}

		for cIdx, colName := range row {
			cLower := strings.ToLower(strings.TrimSpace(colName))
			if strings.Contains(cLower, "фио") || strings.Contains(cLower, "пациент") {
				fioIdx = cIdx
			}
			if strings.Contains(cLower, "телефон") || strings.Contains(cLower, "тел.") {
				phoneIdx = cIdx
			}
		}
		if fioIdx != -1 && phoneIdx != -1 {
			headerRow = rIdx
			return
		}
	}
	return -1, -1, -1
}

func safeCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizePhone приводит номер к формату +992XXXXXXXXX. Локальные записи
// вида 9XXXXXXXX дополняются кодом страны, мусор отбрасывается.
func normalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 12 && strings.HasPrefix(d, "992"):
		return "+" + d
	case len(d) == 9:
		return "+992" + d
	default:
		return ""
	}
}
