package appointment

import (
	"context"

	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
)

// Repository owns the date buckets. Every live appointment sits in exactly
// one bucket; Replace moves it between buckets in one step.
type Repository interface {
	Insert(ctx context.Context, a Appointment) error
	Get(ctx context.Context, id string) (Appointment, error)

	// Replace stores a over the record with the same id and returns the previous version.
	Replace(ctx context.Context, a Appointment) (Appointment, error)

	// Remove reports found=false for an id that is not live.
	Remove(ctx context.Context, id string) (Appointment, bool, error)

	// ListByDate is ordered by normalized time ascending.
	ListByDate(ctx context.Context, date calendar.DateKey) ([]Appointment, error)
	Search(ctx context.Context, query string) ([]Appointment, error)

	// All is ordered newest first.
	All(ctx context.Context) ([]Appointment, error)
}
