package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/config"
	"github.com/hackgods/clinical-workflow-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	LabRatio        float64
	ReadRatio       float64
	Providers       int
	Patients        int
	Days            int
}

type patient struct {
	Ref  string
	Name string
}

type slotRef struct {
	Provider string
	Date     calendar.DateKey
	Time     string
	Channel  availability.Channel
}

type DataPool struct {
	Patients []patient
	Slots    []slotRef
	Dates    []calendar.DateKey

	mu           sync.RWMutex
	appointments []string
	labRequests  []string
}

func (dp *DataPool) AddAppointment(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return "", false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) AddLabRequest(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.labRequests = append(dp.labRequests, id)
}

func (dp *DataPool) GetRandomLabRequest(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.labRequests) == 0 {
		return "", false
	}
	return dp.labRequests[rng.Intn(len(dp.labRequests))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	return sum / time.Duration(len(latencies)),
		latencies[0],
		latencies[len(latencies)-1],
		percentile(latencies, 50),
		percentile(latencies, 95)
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Booking    OperationMetrics
	Reschedule OperationMetrics
	LabCreate  OperationMetrics
	LabAdvance OperationMetrics
	ReadByID   OperationMetrics
	ListByDate OperationMetrics
	Search     OperationMetrics
	Calendar   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

var slotTimes = []string{"9:00 AM", "9:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "1:30 PM", "2:00 PM", "2:30 PM", "3:30 PM", "4:00 PM"}

var labActions = []string{"accept", "collect", "confirm-collection", "start", "complete", "report", "approve", "send", "invoice"}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load base config")
	}
	log := logger.New(baseCfg.Env)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("lab", cfg.LabRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sim.pool, err = sim.preparePool(ctx, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("prepare data pool")
	}
	log.Info().Int("patients", len(sim.pool.Patients)).Int("slots", len(sim.pool.Slots)).Msg("data pool ready")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.35),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		LabRatio:        getFloat("SIM_LAB_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.35),
		Providers:       getInt("SIM_PROVIDERS", 5),
		Patients:        getInt("SIM_PATIENTS", 500),
		Days:            getInt("SIM_DAYS", 14),
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.LabRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.LabRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Providers <= 0 || cfg.Patients <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_PROVIDERS, SIM_PATIENTS and SIM_DAYS must be > 0")
	}
	return nil
}

// preparePool declares fresh provider schedules through the API so every
// booking the workers attempt targets a slot that exists.
func (s *Simulator) preparePool(ctx context.Context, now time.Time) (*DataPool, error) {
	faker := gofakeit.New(uint64(now.UnixNano()))
	pool := &DataPool{}

	for i := 0; i < s.config.Patients; i++ {
		pool.Patients = append(pool.Patients, patient{Ref: uuid.NewString(), Name: faker.Name()})
	}

	channels := []availability.Channel{availability.ChannelInPerson, availability.ChannelVideo, availability.ChannelPhone}
	today := calendar.DateOf(now)

	for d := 1; d <= s.config.Days; d++ {
		pool.Dates = append(pool.Dates, today.AddDays(d).Key())
	}

	for p := 0; p < s.config.Providers; p++ {
		provider := fmt.Sprintf("sim-%s-%d", strings.ToLower(faker.LastName()), p)
		for _, key := range pool.Dates {
			slots := make([]availability.TimeSlot, 0, len(slotTimes))
			for _, t := range slotTimes {
				ch := channels[faker.Number(0, len(channels)-1)]
				slots = append(slots, availability.TimeSlot{Time: t, Available: true, Channel: ch})
				pool.Slots = append(pool.Slots, slotRef{Provider: provider, Date: key, Time: t, Channel: ch})
			}

			body, _ := json.Marshal(map[string]any{"slots": slots})
			path := fmt.Sprintf("/providers/%s/schedule/%s", url.PathEscape(provider), key)
			status, _, err := s.send(ctx, http.MethodPut, path, body)
			if err != nil {
				return nil, fmt.Errorf("declare schedule: %w", err)
			}
			if status != http.StatusOK {
				return nil, fmt.Errorf("declare schedule %s %s: status %d", provider, key, status)
			}
		}
	}
	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < c.BookingRatio+c.RescheduleRatio+c.LabRatio:
			if rng.Intn(3) == 0 {
				s.doLabCreate(ctx, rng)
			} else {
				s.doLabAdvance(ctx, rng)
			}
		default:
			switch rng.Intn(4) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByDate(ctx, rng)
			case 2:
				s.doSearch(ctx, rng)
			case 3:
				s.doCalendar(ctx)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]any{
		"patient_ref":      p.Ref,
		"patient_name":     p.Name,
		"provider_ref":     slot.Provider,
		"title":            "Visit with " + p.Name,
		"date":             slot.Date,
		"time":             slot.Time,
		"duration_minutes": 30,
		"type":             "Consultation",
		"channel":          slot.Channel,
	})

	start := time.Now()
	status, resp, err := s.send(ctx, http.MethodPost, "/appointments/book", body)
	latency := time.Since(start)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(resp, &created) == nil && created.ID != "" {
			s.pool.AddAppointment(created.ID)
		}
	}
	s.record(&s.metrics.Booking, latency, status, err, http.StatusCreated)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	date := string(s.pool.Dates[rng.Intn(len(s.pool.Dates))])
	t := slotTimes[rng.Intn(len(slotTimes))]
	body, _ := json.Marshal(map[string]string{"date": date, "time": t})

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPatch, "/appointments/"+id, body)
	s.record(&s.metrics.Reschedule, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doLabCreate(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	urgency := []string{"Normal", "Normal", "High", "Urgent"}[rng.Intn(4)]
	test := []string{"Complete Blood Count", "Lipid Panel", "Urinalysis", "Blood Culture"}[rng.Intn(4)]
	body, _ := json.Marshal(map[string]string{
		"patient_ref":  p.Ref,
		"provider_ref": s.pool.Slots[rng.Intn(len(s.pool.Slots))].Provider,
		"test_type":    test,
		"urgency":      urgency,
	})

	start := time.Now()
	status, resp, err := s.send(ctx, http.MethodPost, "/lab/requests", body)
	latency := time.Since(start)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(resp, &created) == nil && created.ID != "" {
			s.pool.AddLabRequest(created.ID)
		}
	}
	s.record(&s.metrics.LabCreate, latency, status, err, http.StatusCreated)
}

// doLabAdvance fires a random workflow action; out-of-order actions come
// back as 409 and are counted as conflicts.
func (s *Simulator) doLabAdvance(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomLabRequest(rng)
	if !ok {
		return
	}
	action := labActions[rng.Intn(len(labActions))]

	var body []byte
	switch action {
	case "collect":
		body, _ = json.Marshal(map[string]string{"collected_by": "Simulator", "location": "Draw Room 1"})
	case "confirm-collection":
		body, _ = json.Marshal(map[string]string{"volume": "5 mL"})
	case "report":
		body, _ = json.Marshal(map[string]string{"results": "Within normal limits"})
	}

	start := time.Now()
	status, _, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/lab/requests/%s/%s", id, action), body)
	s.record(&s.metrics.LabAdvance, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/appointments/"+id, nil)
	s.record(&s.metrics.ReadByID, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doListByDate(ctx context.Context, rng *rand.Rand) {
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/appointments?date="+string(date), nil)
	s.record(&s.metrics.ListByDate, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doSearch(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	q := strings.Fields(p.Name)[0]
	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, "/appointments?q="+url.QueryEscape(q), nil)
	s.record(&s.metrics.Search, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doCalendar(ctx context.Context) {
	d, _ := s.pool.Dates[0].Date()
	start := time.Now()
	status, _, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/calendar/%d/%d", d.Year, int(d.Month)), nil)
	s.record(&s.metrics.Calendar, time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// record drops requests cut off by the end of the run.
func (s *Simulator) record(om *OperationMetrics, latency time.Duration, status int, err error, want int) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}
	om.Record(latency, err == nil && status == want, status == http.StatusConflict)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Lab create", &s.metrics.LabCreate)
	printOperationReport("Lab advance", &s.metrics.LabAdvance)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by date", &s.metrics.ListByDate)
	printOperationReport("Search", &s.metrics.Search)
	printOperationReport("Calendar month", &s.metrics.Calendar)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
