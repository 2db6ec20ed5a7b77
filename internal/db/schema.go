package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied on startup; every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS appointments (
		id               TEXT PRIMARY KEY,
		patient_ref      TEXT NOT NULL,
		patient_name     TEXT NOT NULL,
		provider_ref     TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		date_key         CHAR(10) NOT NULL,
		time_display     TEXT NOT NULL,
		time_sort        CHAR(5) NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		type             TEXT NOT NULL DEFAULT '',
		channel          TEXT NOT NULL,
		status           TEXT NOT NULL,
		notes            TEXT NOT NULL DEFAULT '',
		slot_booked      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS appointments_date_time_idx ON appointments (date_key, time_sort)`,
	`CREATE INDEX IF NOT EXISTS appointments_created_idx ON appointments (created_at DESC)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
