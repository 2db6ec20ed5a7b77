package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/config"
	"github.com/hackgods/clinical-workflow-scheduling/internal/db"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
	"github.com/hackgods/clinical-workflow-scheduling/internal/labflow"
	"github.com/hackgods/clinical-workflow-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinical-workflow-scheduling/internal/redis"
)

const (
	providerCount   = 8
	patientCount    = 200
	scheduleDays    = 21
	bookingsPerDay  = 6
	labRequestCount = 40
)

var (
	slotTimes = []string{"9:00 AM", "9:30 AM", "10:00 AM", "11:00 AM", "1:30 PM", "2:00 PM", "3:30 PM", "4:00 PM"}
	channels  = []availability.Channel{availability.ChannelInPerson, availability.ChannelVideo, availability.ChannelPhone}
	visitKind = []string{"Consultation", "Follow-up", "Check-up", "Lab Review", "Vaccination"}
	noteLines = []string{"Bring previous results", "Fasting required", "Interpreter requested", "Wheelchair access", "Referral attached", ""}
	labNotes  = []string{"Fasting sample", "Draw before 10am", "Repeat of last month", "Patient on anticoagulants", ""}
)

type patient struct {
	Ref  string
	Name string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env)
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if !cfg.RedisEnabled {
		log.Fatal().Msg("seed writes to Redis; set REDIS_ENABLED=true")
	}
	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()
	store := kv.NewRedisStore(rdb, "clinic:")

	var repo appointment.Repository = appointment.NewMemoryRepository()
	if cfg.PostgresDSN != "" {
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		repo = appointment.NewPgRepository(pool)
	}

	clk := clock.System(cfg.CalendarLocation)
	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	providers := make([]string, providerCount)
	for i := range providers {
		providers[i] = "dr-" + faker.LastName()
	}
	patients := make([]patient, patientCount)
	for i := range patients {
		patients[i] = patient{Ref: uuid.NewString(), Name: faker.Name()}
	}

	book := availability.NewBook(store, log)
	if err := book.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore availability")
	}
	if err := seedSchedules(ctx, book, faker, providers, clk.Now(), log); err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}

	appointments := appointment.NewService(appointment.Deps{
		Repo:      repo,
		Schedules: book,
		Store:     store,
		Clock:     clk,
		Logger:    log,
	})
	if err := appointments.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore appointments")
	}
	seedAppointments(ctx, appointments, book, faker, providers, patients, clk.Now(), log)

	lab := labflow.NewEngine(labflow.Deps{Store: store, Clock: clk, Logger: log})
	if err := lab.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore lab requests")
	}
	seedLab(ctx, lab, faker, providers, patients, log)

	log.Info().Interface("appointments", appointments.Stats()).Interface("lab", lab.Stats()).Msg("seed complete")
}

func seedSchedules(ctx context.Context, book *availability.Book, faker *gofakeit.Faker, providers []string, now time.Time, log zerolog.Logger) error {
	today := calendar.DateOf(now)
	for _, p := range providers {
		for d := 0; d < scheduleDays; d++ {
			date := today.AddDays(d)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			ds := availability.DaySchedule{Date: date}
			for _, t := range slotTimes {
				ds.Slots = append(ds.Slots, availability.TimeSlot{
					Time:      t,
					Available: faker.Float64() < 0.85,
					Channel:   channels[faker.Number(0, len(channels)-1)],
				})
			}
			if err := book.Declare(ctx, p, ds); err != nil {
				return err
			}
		}
		log.Info().Str("provider", p).Msg("schedule declared")
	}
	return nil
}

func seedAppointments(ctx context.Context, svc *appointment.Service, book *availability.Book, faker *gofakeit.Faker, providers []string, patients []patient, now time.Time, log zerolog.Logger) {
	today := calendar.DateOf(now)
	booked, skipped := 0, 0
	for d := 0; d < scheduleDays; d++ {
		key := today.AddDays(d).Key()
		for i := 0; i < bookingsPerDay; i++ {
			provider := providers[faker.Number(0, len(providers)-1)]
			open := book.Available(provider, key)
			if len(open) == 0 {
				skipped++
				continue
			}
			slot := open[faker.Number(0, len(open)-1)]
			p := patients[faker.Number(0, len(patients)-1)]
			kind := visitKind[faker.Number(0, len(visitKind)-1)]

			_, err := svc.Book(ctx, appointment.Draft{
				PatientRef:      p.Ref,
				PatientName:     p.Name,
				ProviderRef:     provider,
				Title:           kind + " with " + p.Name,
				Date:            string(key),
				Time:            slot.Time,
				DurationMinutes: []int{15, 30, 45}[faker.Number(0, 2)],
				Type:            kind,
				Channel:         string(slot.Channel),
				Notes:           faker.RandomString(noteLines),
			})
			if err != nil {
				log.Warn().Err(err).Str("date", string(key)).Msg("booking skipped")
				skipped++
				continue
			}
			booked++
		}
	}
	log.Info().Int("booked", booked).Int("skipped", skipped).Msg("appointments seeded")
}

// seedLab spreads requests across the workflow so every stage is populated.
func seedLab(ctx context.Context, lab *labflow.Engine, faker *gofakeit.Faker, providers []string, patients []patient, log zerolog.Logger) {
	names := lab.Catalog().Names()
	for i := 0; i < labRequestCount; i++ {
		p := patients[faker.Number(0, len(patients)-1)]
		req, err := lab.Create(ctx, labflow.Order{
			PatientRef:   p.Ref,
			ProviderRef:  providers[faker.Number(0, len(providers)-1)],
			TestType:     names[faker.Number(0, len(names)-1)],
			Urgency:      string([]labflow.Urgency{labflow.UrgencyNormal, labflow.UrgencyNormal, labflow.UrgencyHigh, labflow.UrgencyUrgent}[faker.Number(0, 3)]),
			Instructions: faker.RandomString(labNotes),
		})
		if err != nil {
			log.Warn().Err(err).Msg("lab request skipped")
			continue
		}
		if err := advance(ctx, lab, faker, req.ID, faker.Number(0, 6)); err != nil {
			log.Warn().Err(err).Str("request_id", req.ID).Msg("lab workflow stopped early")
		}
	}
	log.Info().Int("requests", labRequestCount).Msg("lab requests seeded")
}

func advance(ctx context.Context, lab *labflow.Engine, faker *gofakeit.Faker, id string, stage int) error {
	if stage == 0 {
		return nil
	}
	if stage == 1 {
		_, err := lab.Reject(ctx, id, "duplicate order")
		return err
	}
	if _, err := lab.Accept(ctx, id); err != nil {
		return err
	}
	if stage == 2 {
		return nil
	}
	if _, _, err := lab.CollectSample(ctx, id, labflow.SampleDetails{CollectedBy: faker.Name(), Location: "Draw Room " + faker.DigitN(1)}); err != nil {
		return err
	}
	if _, err := lab.ConfirmCollection(ctx, id, faker.DigitN(1)+" mL"); err != nil {
		return err
	}
	if stage == 3 {
		return nil
	}
	if _, err := lab.StartProcessing(ctx, id); err != nil {
		return err
	}
	if stage == 4 {
		return nil
	}
	if _, err := lab.CompleteProcessing(ctx, id); err != nil {
		return err
	}
	if _, err := lab.GenerateReport(ctx, id, faker.RandomString([]string{"Within normal limits", "Mildly elevated, recheck in 3 months", "Abnormal, follow up with provider"})); err != nil {
		return err
	}
	if stage == 5 {
		return nil
	}
	if _, err := lab.ApproveReport(ctx, id); err != nil {
		return err
	}
	if _, err := lab.SendReport(ctx, id); err != nil {
		return err
	}
	_, err := lab.GenerateInvoice(ctx, id)
	return err
}
