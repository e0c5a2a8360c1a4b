package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"triage-system/internal/entities"
	apperrors "triage-system/pkg/errors"
)

const (
	patientTable  = "patients"
	patientFields = "id, fio, phone, created_at"
)

type PatientRepositoryInterface interface {
	FindPatient(ctx context.Context, id uint64) (*entities.Patient, error)
	FindPatientByPhone(ctx context.Context, phone string) (*entities.Patient, error)
	// UpsertPatient создаёт пациента или обновляет ФИО по номеру телефона.
	// Телефон - естественный ключ при импорте из регистратуры.
	UpsertPatient(ctx context.Context, p entities.Patient) (uint64, error)
	GetPatients(ctx context.Context, limit, offset uint64) ([]entities.Patient, uint64, error)
}

type patientRepository struct {
	storage *pgxpool.Pool
}

func NewPatientRepository(storage *pgxpool.Pool) PatientRepositoryInterface {
	return &patientRepository{storage: storage}
}

func (r *patientRepository) FindPatient(ctx context.Context, id uint64) (*entities.Patient, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *patientRepository) FindPatientByPhone(ctx context.Context, phone string) (*entities.Patient, error) {
	return r.findOne(ctx, sq.Eq{"phone": phone})
}

func (r *patientRepository) findOne(ctx context.Context, where sq.Eq) (*entities.Patient, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Select(patientFields).From(patientTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса поиска пациента: %w", err)
	}

	var p entities.Patient
	err = r.storage.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Fio, &p.Phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования patients: %w", err)
	}
	return &p, nil
}

func (r *patientRepository) UpsertPatient(ctx context.Context, p entities.Patient) (uint64, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Insert(patientTable).
		Columns("fio", "phone", "created_at").
		Values(p.Fio, p.Phone, sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (phone) DO UPDATE SET fio = EXCLUDED.fio RETURNING id`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("ошибка сборки запроса UpsertPatient: %w", err)
	}

	var id uint64
	if err := r.storage.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("ошибка записи пациента %q: %w", p.Phone, err)
	}
	return id, nil
}

func (r *patientRepository) GetPatients(ctx context.Context, limit, offset uint64) ([]entities.Patient, uint64, error) {
	var total uint64
	if err := r.storage.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта пациентов: %w", err)
	}

	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Select(patientFields).
		From(patientTable).
		OrderBy("fio ASC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса списка пациентов: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка пациентов: %w", err)
	}
	defer rows.Close()

	patients := make([]entities.Patient, 0)
	for rows.Next() {
		var p entities.Patient
		if err := rows.Scan(&p.ID, &p.Fio, &p.Phone, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования пациента в списке: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, nil
}
