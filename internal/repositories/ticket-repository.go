package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/entities"
	apperrors "triage-system/pkg/errors"
)

const (
	ticketTable  = "tickets"
	ticketFields = `id, title, description, patient_id, patient_name, patient_phone, priority, category, status, lane, retry_count, escalated, assigned_to_id, created_by_id, resolved_by_id, call_id, created_at, updated_at, resolved_at`
)

// Белый список фильтров (защита от SQL Injection)
var allowedTicketFilters = map[string]string{
	"status":         "status",
	"priority":       "priority",
	"lane":           "lane",
	"category":       "category",
	"patient_id":     "patient_id",
	"assigned_to_id": "assigned_to_id",
	"created_by_id":  "created_by_id",
	"escalated":      "escalated",
}

type TicketRepositoryInterface interface {
	// SaveTicket - upsert снимка тикета; сюда пишет журнал после каждого
	// зафиксированного перехода.
	SaveTicket(ctx context.Context, t entities.Ticket) error
	FindTicket(ctx context.Context, id uint64) (*entities.Ticket, error)
	ListTickets(ctx context.Context, filter dto.TicketFilterDTO) ([]entities.Ticket, uint64, error)

	// Восстановление движка после рестарта.
	LoadActiveTickets(ctx context.Context) ([]entities.Ticket, error)
	MaxTicketID(ctx context.Context) (uint64, error)
}

type ticketRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewTicketRepository(storage *pgxpool.Pool, logger *zap.Logger) TicketRepositoryInterface {
	return &ticketRepository{storage: storage, logger: logger}
}

func (r *ticketRepository) SaveTicket(ctx context.Context, t entities.Ticket) error {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Insert(ticketTable).
		Columns("id", "title", "description", "patient_id", "patient_name", "patient_phone",
			"priority", "category", "status", "lane", "retry_count", "escalated",
			"assigned_to_id", "created_by_id", "resolved_by_id", "call_id",
			"created_at", "updated_at", "resolved_at").
		Values(t.ID, t.Title, t.Description, t.PatientID, t.PatientName, t.PatientPhone,
			t.Priority, t.Category, t.Status, nullIfEmpty(t.Lane), t.RetryCount, t.Escalated,
			t.AssignedToID, t.CreatedByID, t.ResolvedByID, t.CallID,
			t.CreatedAt, t.UpdatedAt, t.ResolvedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			lane = EXCLUDED.lane,
			retry_count = EXCLUDED.retry_count,
			escalated = EXCLUDED.escalated,
			assigned_to_id = EXCLUDED.assigned_to_id,
			resolved_by_id = EXCLUDED.resolved_by_id,
			call_id = EXCLUDED.call_id,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки запроса SaveTicket: %w", err)
	}

	if _, err := r.storage.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ошибка записи тикета %d: %w", t.ID, err)
	}
	return nil
}

func (r *ticketRepository) FindTicket(ctx context.Context, id uint64) (*entities.Ticket, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Select(ticketFields).
		From(ticketTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса FindTicket: %w", err)
	}
	return r.scanRow(r.storage.QueryRow(ctx, query, args...))
}

func (r *ticketRepository) ListTickets(ctx context.Context, filter dto.TicketFilterDTO) ([]entities.Ticket, uint64, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	where := sq.Eq{}
	for key, value := range filter.Conditions() {
		column, ok := allowedTicketFilters[key]
		if !ok {
			return nil, 0, apperrors.NewValidationError("недопустимый фильтр: %q", key)
		}
		where[column] = value
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(ticketTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса подсчёта тикетов: %w", err)
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта тикетов: %w", err)
	}

	builder := psql.Select(ticketFields).
		From(ticketTable).
		Where(where).
		OrderBy("created_at DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки запроса списка тикетов: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка тикетов: %w", err)
	}
	defer rows.Close()

	tickets, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// LoadActiveTickets отдаёт незакрытые тикеты в порядке (приоритет, created_at) -
// именно в этом порядке движок проигрывает их при восстановлении.
func (r *ticketRepository) LoadActiveTickets(ctx context.Context) ([]entities.Ticket, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	query, args, err := psql.Select(ticketFields).
		From(ticketTable).
		Where(sq.NotEq{"status": "CLOSED"}).
		OrderBy(`CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END`, "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки запроса LoadActiveTickets: %w", err)
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения активных тикетов: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *ticketRepository) MaxTicketID(ctx context.Context) (uint64, error) {
	var max uint64
	err := r.storage.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM tickets`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения максимального ID тикета: %w", err)
	}
	return max, nil
}

func (r *ticketRepository) scanRows(rows pgx.Rows) ([]entities.Ticket, error) {
	tickets := make([]entities.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода списка тикетов: %w", err)
	}
	return tickets, nil
}

func (r *ticketRepository) scanRow(row pgx.Row) (*entities.Ticket, error) {
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func scanTicket(row pgx.Row) (*entities.Ticket, error) {
	var t entities.Ticket
	var lane, callID sql.NullString
	var assignedToID, resolvedByID sql.NullInt64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.PatientID, &t.PatientName, &t.PatientPhone,
		&t.Priority, &t.Category, &t.Status, &lane, &t.RetryCount, &t.Escalated,
		&assignedToID, &t.CreatedByID, &resolvedByID, &callID,
		&t.CreatedAt, &t.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка сканирования tickets: %w", err)
	}

	if lane.Valid {
		t.Lane = lane.String
	}
	if callID.Valid {
		t.CallID = &callID.String
	}
	if assignedToID.Valid {
		id := uint64(assignedToID.Int64)
		t.AssignedToID = &id
	}
	if resolvedByID.Valid {
		id := uint64(resolvedByID.Int64)
		t.ResolvedByID = &id
	}
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}
	return &t, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
