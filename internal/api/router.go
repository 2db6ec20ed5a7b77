package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/identity"
	"github.com/hackgods/clinical-workflow-scheduling/internal/labflow"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Schedules     *availability.Book
	Lab           *labflow.Engine
	Notifications *notify.Log
	Hub           *notify.Hub
	Publisher     notify.Publisher
	Profile       identity.Profile
	Clock         clock.Clock
	Logger        zerolog.Logger
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Clock == nil {
		cfg.Clock = clock.System(nil)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = notify.Nop{}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/me", meHandler(cfg.Profile, cfg.Clock))

	r.Get("/calendar/{year}/{month}", monthViewHandler(cfg.Appointments))
	r.Get("/providers/{provider}/schedule/{date}", getScheduleHandler(cfg.Schedules))
	r.Put("/providers/{provider}/schedule/{date}", declareScheduleHandler(cfg.Schedules, cfg.Publisher))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Post("/book", bookAppointmentHandler(cfg.Appointments))
		r.Get("/stats", appointmentStatsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Appointments))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
	})

	r.Route("/lab", func(r chi.Router) {
		r.Get("/catalog", labCatalogHandler(cfg.Lab))
		r.Get("/stats", labStatsHandler(cfg.Lab))
		r.Post("/requests", createTestRequestHandler(cfg.Lab))
		r.Get("/requests", listTestRequestsHandler(cfg.Lab))
		r.Get("/requests/{id}", getTestRequestHandler(cfg.Lab))
		r.Post("/requests/{id}/{action}", labActionHandler(cfg.Lab))
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", listNotificationsHandler(cfg.Notifications))
		r.Post("/read-all", markAllNotificationsReadHandler(cfg.Notifications))
		r.Post("/{id}/read", markNotificationReadHandler(cfg.Notifications))
		r.Delete("/{id}", deleteNotificationHandler(cfg.Notifications))
	})

	if cfg.Hub != nil {
		r.Get("/events", eventsHandler(cfg.Hub))
	}

	return r
}
