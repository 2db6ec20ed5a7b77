package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
)

// PgRepository keeps one row per appointment; the date bucket is the
// date_key column, so moving a record between buckets is a single UPDATE.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_ref, patient_name, provider_ref, title, date_key, time_display,
	duration_minutes, type, channel, status, notes, slot_booked, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var date string

	err := row.Scan(
		&a.ID,
		&a.PatientRef,
		&a.PatientName,
		&a.ProviderRef,
		&a.Title,
		&date,
		&a.Time,
		&a.DurationMinutes,
		&a.Type,
		&a.Channel,
		&a.Status,
		&a.Notes,
		&a.SlotBooked,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}

	a.Date = calendar.DateKey(date)
	return a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`, time_sort)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, a.ID, a.PatientRef, a.PatientName, a.ProviderRef, a.Title, string(a.Date), a.Time,
		a.DurationMinutes, a.Type, a.Channel, a.Status, a.Notes, a.SlotBooked, a.CreatedAt, a.UpdatedAt,
		a.SortKey())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Validation("appointment %s already exists", a.ID)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, apperr.NotFound("appointment", id)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) Replace(ctx context.Context, a Appointment) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	prev, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, a.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, apperr.NotFound("appointment", a.ID)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("load appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET patient_name = $2,
		    title = $3,
		    date_key = $4,
		    time_display = $5,
		    time_sort = $6,
		    duration_minutes = $7,
		    type = $8,
		    channel = $9,
		    status = $10,
		    notes = $11,
		    slot_booked = $12,
		    updated_at = $13
		WHERE id = $1
	`, a.ID, a.PatientName, a.Title, string(a.Date), a.Time, a.SortKey(), a.DurationMinutes,
		a.Type, a.Channel, a.Status, a.Notes, a.SlotBooked, a.UpdatedAt)
	if err != nil {
		return Appointment{}, fmt.Errorf("update appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("commit replace: %w", err)
	}
	return prev, nil
}

func (r *PgRepository) Remove(ctx context.Context, id string) (Appointment, bool, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING `+appointmentColumns, id)

	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, false, nil
	}
	if err != nil {
		return Appointment{}, false, fmt.Errorf("delete appointment: %w", err)
	}
	return a, true, nil
}

func (r *PgRepository) ListByDate(ctx context.Context, date calendar.DateKey) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date_key = $1
		ORDER BY time_sort ASC, id ASC
	`, string(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) Search(ctx context.Context, query string) ([]Appointment, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE lower(patient_name) LIKE $1
		   OR lower(time_display) LIKE $1
		   OR lower(type) LIKE $1
		   OR lower(title) LIKE $1
		ORDER BY created_at DESC, id DESC
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) All(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
