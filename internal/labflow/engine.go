// Package labflow runs lab test requests from order to sent report. Every
// transition validates against the current state first and commits only when
// all affected entities can move together.
package labflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/ident"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
	"github.com/hackgods/clinical-workflow-scheduling/internal/lock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
	"github.com/hackgods/clinical-workflow-scheduling/internal/stats"
	"github.com/hackgods/clinical-workflow-scheduling/internal/task"
)

// SnapshotKey holds every record, newest request first.
const SnapshotKey = "lab_requests"

const (
	ActionCreated            = "created"
	ActionAccepted           = "accepted"
	ActionRejected           = "rejected"
	ActionTechnicianAssigned = "technician_assigned"
	ActionSampleRequested    = "sample_requested"
	ActionSampleCollected    = "sample_collected"
	ActionProcessingStarted  = "processing_started"
	ActionProcessingComplete = "processing_completed"
	ActionReportGenerated    = "report_generated"
	ActionReportApproved     = "report_approved"
	ActionReportSent         = "report_sent"
	ActionInvoiceIssued      = "invoice_issued"
)

var (
	DefaultTechnicians = []string{"Sarah Johnson", "Mike Chen", "Priya Patel"}
	DefaultStations    = []string{"Hematology-1", "Chemistry-2", "Microbiology-3"}
)

var errUnchanged = errors.New("unchanged")

type Deps struct {
	Catalog       *Catalog
	Allocator     Allocator
	Locker        lock.Locker
	Store         kv.Store
	Publisher     notify.Publisher
	Clock         clock.Clock
	Logger        zerolog.Logger
	ArtifactDelay time.Duration
}

type Engine struct {
	catalog   *Catalog
	allocator Allocator
	locker    lock.Locker
	store     kv.Store
	publisher notify.Publisher
	clock     clock.Clock
	logger    zerolog.Logger
	delay     time.Duration

	requestIDs *ident.Sequence
	sampleIDs  *ident.Sequence
	reportIDs  *ident.Sequence
	invoiceIDs *ident.Sequence
	tracker    *stats.Tracker

	mu      sync.RWMutex
	records map[string]Record

	// allocMu serializes accepts so queue positions are not handed out twice.
	allocMu sync.Mutex
	// snapMu orders snapshot writes across records.
	snapMu sync.Mutex
}

func NewEngine(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.System(nil)
	}
	if d.Catalog == nil {
		d.Catalog = DefaultCatalog()
	}
	if d.Allocator == nil {
		d.Allocator, _ = NewPoolAllocator(DefaultTechnicians, DefaultStations, DefaultSlot)
	}
	if d.Locker == nil {
		d.Locker = lock.NewMemory()
	}
	if d.Store == nil {
		d.Store = kv.NewMemoryStore()
	}
	if d.Publisher == nil {
		d.Publisher = notify.Nop{}
	}
	if d.ArtifactDelay < 0 {
		d.ArtifactDelay = 0
	}

	return &Engine{
		catalog:    d.Catalog,
		allocator:  d.Allocator,
		locker:     d.Locker,
		store:      d.Store,
		publisher:  d.Publisher,
		clock:      d.Clock,
		logger:     d.Logger,
		delay:      d.ArtifactDelay,
		requestIDs: ident.NewSequence("TR", d.Clock),
		sampleIDs:  ident.NewSequence("SC", d.Clock),
		reportIDs:  ident.NewSequence("LR", d.Clock),
		invoiceIDs: ident.NewSequence("INV", d.Clock),
		tracker:    stats.NewTracker(),
		records:    make(map[string]Record),
	}
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Restore reloads the persisted records and primes ids and counters from them.
func (e *Engine) Restore(ctx context.Context) error {
	var saved []Record
	if _, err := kv.GetJSON(ctx, e.store, SnapshotKey, &saved); err != nil {
		return fmt.Errorf("load lab snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range saved {
		if r.Request.ID == "" {
			continue
		}
		e.records[r.Request.ID] = r
		e.requestIDs.Observe(r.Request.ID)
		if r.Sample != nil {
			e.sampleIDs.Observe(r.Sample.ID)
		}
		if r.Report != nil {
			e.reportIDs.Observe(r.Report.ID)
		}
		if r.Invoice != nil {
			e.invoiceIDs.Observe(r.Invoice.Number)
		}
		e.tracker.Set(r.Request.ID, classifyRecord(r))
	}
	return nil
}

// Create records a new order in Pending.
func (e *Engine) Create(ctx context.Context, o Order) (TestRequest, error) {
	patient := strings.TrimSpace(o.PatientRef)
	provider := strings.TrimSpace(o.ProviderRef)
	testType := strings.TrimSpace(o.TestType)

	switch {
	case patient == "":
		return TestRequest{}, apperr.Validation("patient is required")
	case provider == "":
		return TestRequest{}, apperr.Validation("requesting provider is required")
	case testType == "":
		return TestRequest{}, apperr.Validation("test type is required")
	}

	urgency, err := ParseUrgency(o.Urgency)
	if err != nil {
		return TestRequest{}, err
	}

	tt := e.catalog.Lookup(testType)
	sampleType := strings.TrimSpace(o.SampleType)
	if sampleType == "" {
		sampleType = tt.SampleType
	}

	now := e.clock.Now()
	req := TestRequest{
		ID:                    e.requestIDs.Next(),
		PatientRef:            patient,
		RequestingProviderRef: provider,
		TestType:              tt.Name,
		Urgency:               urgency,
		Status:                RequestPending,
		SampleType:            sampleType,
		Instructions:          strings.TrimSpace(o.Instructions),
		RequestDate:           now,
		UpdatedAt:             now,
	}
	o := outcome{
		record:   Record{Request: req},
		entity:   notify.EntityTestRequest,
		entityID: req.ID,
		action:   ActionCreated,
		message:  fmt.Sprintf("%s ordered for %s (%s)", req.TestType, req.PatientRef, req.Urgency),
	}

	err = e.locker.WithLock(ctx, lockKey(req.ID), func(lockCtx context.Context) error {
		e.mu.Lock()
		e.records[req.ID] = o.record
		e.mu.Unlock()

		e.commitLocked(lockCtx, o)
		return nil
	})
	if err != nil {
		return TestRequest{}, err
	}

	e.announce(ctx, o)
	return req, nil
}

// Accept queues a pending request and assigns its technician and station.
func (e *Engine) Accept(ctx context.Context, id string) (TestRequest, error) {
	e.allocMu.Lock()
	defer e.allocMu.Unlock()

	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if !r.Request.Status.canBecome(RequestAccepted) {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "accept")
		}

		qa, err := e.allocator.Allocate(Allocation{
			Request:    r.Request,
			Active:     e.activeCount(),
			Turnaround: e.catalog.Lookup(r.Request.TestType).Turnaround,
			Now:        now,
		})
		if err != nil {
			return outcome{}, fmt.Errorf("allocate %s: %w", id, err)
		}
		if !qa.valid(now) {
			return outcome{}, fmt.Errorf("allocate %s: incomplete queue assignment %+v", id, qa)
		}

		r.Request.Status = RequestAccepted
		r.Request.Technician = qa.Technician
		r.Request.Assignment = &qa
		r.Request.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionAccepted,
			message:  fmt.Sprintf("%s accepted: %s at %s, queue position %d", r.Request.TestType, qa.Technician, qa.Station, qa.Position),
		}, nil
	})
	return rec.Request, err
}

// Reject closes a pending request. A reason is mandatory.
func (e *Engine) Reject(ctx context.Context, id, reason string) (TestRequest, error) {
	reason = strings.TrimSpace(reason)

	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if !r.Request.Status.canBecome(RequestRejected) {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "reject")
		}
		if reason == "" {
			return outcome{}, apperr.Validation("a reason is required to reject a test request")
		}

		r.Request.Status = RequestRejected
		r.Request.RejectionReason = reason
		r.Request.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionRejected,
			message:  fmt.Sprintf("%s for %s rejected: %s", r.Request.TestType, r.Request.PatientRef, reason),
		}, nil
	})
	return rec.Request, err
}

// AssignTechnician hands an accepted request to a different technician.
func (e *Engine) AssignTechnician(ctx context.Context, id, technician string) (TestRequest, error) {
	technician = strings.TrimSpace(technician)

	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if r.Request.Status != RequestAccepted {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "assign a technician to")
		}
		if technician == "" {
			return outcome{}, apperr.Validation("technician is required")
		}

		r.Request.Technician = technician
		if r.Request.Assignment != nil {
			r.Request.Assignment.Technician = technician
		}
		r.Request.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionTechnicianAssigned,
			message:  fmt.Sprintf("%s assigned to %s", r.Request.TestType, technician),
		}, nil
	})
	return rec.Request, err
}

// CollectSample opens the sample collection for an accepted request and
// prints one label per container.
func (e *Engine) CollectSample(ctx context.Context, id string, d SampleDetails) (SampleCollection, LabelSet, error) {
	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if r.Request.Status != RequestAccepted || r.Request.Technician == "" {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "collect a sample for")
		}
		if r.Sample != nil {
			return outcome{}, apperr.InvalidTransition("sample", r.Sample.Status, "collect")
		}

		tt := e.catalog.Lookup(r.Request.TestType)
		sampleID := e.sampleIDs.Next()
		labels := buildLabels(r.Request, sampleID, tt, now)

		r.Sample = &SampleCollection{
			ID:            sampleID,
			TestRequestID: id,
			CollectedBy:   strings.TrimSpace(d.CollectedBy),
			Container:     strings.Join(tt.Containers, ", "),
			Location:      strings.TrimSpace(d.Location),
			Status:        SamplePending,
			Barcodes:      labels.Barcodes(),
			UpdatedAt:     now,
		}
		r.Labels = &labels

		return outcome{
			record:   r,
			entity:   notify.EntitySample,
			entityID: sampleID,
			action:   ActionSampleRequested,
			message:  fmt.Sprintf("Sample %s opened for %s, %d label(s) printed", sampleID, r.Request.PatientRef, len(labels.Labels)),
		}, nil
	})
	if err != nil {
		return SampleCollection{}, LabelSet{}, err
	}
	return *rec.Sample, *rec.Labels, nil
}

// ConfirmCollection marks the sample as drawn.
func (e *Engine) ConfirmCollection(ctx context.Context, id, volume string) (SampleCollection, error) {
	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if err := sampleCan(r, SampleCollected, "confirm collection of"); err != nil {
			return outcome{}, err
		}

		r.Sample.Status = SampleCollected
		if v := strings.TrimSpace(volume); v != "" {
			r.Sample.Volume = v
		}
		r.Sample.CollectedAt = &now
		r.Sample.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntitySample,
			entityID: r.Sample.ID,
			action:   ActionSampleCollected,
			message:  fmt.Sprintf("Sample %s collected", r.Sample.ID),
		}, nil
	})
	if err != nil {
		return SampleCollection{}, err
	}
	return *rec.Sample, nil
}

// StartProcessing moves the collected sample and its request onto the bench together.
func (e *Engine) StartProcessing(ctx context.Context, id string) (Record, error) {
	return e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if !r.Request.Status.canBecome(RequestInProgress) {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "start processing")
		}
		if err := sampleCan(r, SampleProcessing, "process"); err != nil {
			return outcome{}, err
		}

		r.Request.Status = RequestInProgress
		r.Request.UpdatedAt = now
		r.Sample.Status = SampleProcessing
		r.Sample.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionProcessingStarted,
			message:  fmt.Sprintf("%s processing started", r.Request.TestType),
		}, nil
	})
}

// CompleteProcessing finishes the sample and the request together.
func (e *Engine) CompleteProcessing(ctx context.Context, id string) (Record, error) {
	return e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if !r.Request.Status.canBecome(RequestCompleted) {
			return outcome{}, apperr.InvalidTransition("test request", r.Request.Status, "complete")
		}
		if err := sampleCan(r, SampleCompleted, "complete"); err != nil {
			return outcome{}, err
		}

		r.Request.Status = RequestCompleted
		r.Request.CompletedAt = &now
		r.Request.UpdatedAt = now
		r.Sample.Status = SampleCompleted
		r.Sample.UpdatedAt = now

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionProcessingComplete,
			message:  fmt.Sprintf("%s for %s completed", r.Request.TestType, r.Request.PatientRef),
		}, nil
	})
}

// GenerateReport drafts the report once the sample has been fully processed.
func (e *Engine) GenerateReport(ctx context.Context, id, results string) (LabReport, error) {
	results = strings.TrimSpace(results)

	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if r.Sample == nil {
			return outcome{}, apperr.InvalidTransition("a report for test request", r.Request.Status, "generate")
		}
		if r.Sample.Status != SampleCompleted {
			return outcome{}, apperr.InvalidTransition("a report for sample", r.Sample.Status, "generate")
		}
		if r.Report != nil {
			return outcome{}, apperr.InvalidTransition("report", r.Report.Status, "generate")
		}

		completed := now
		if r.Request.CompletedAt != nil {
			completed = *r.Request.CompletedAt
		}
		r.Report = &LabReport{
			ID:            e.reportIDs.Next(),
			TestRequestID: id,
			Technician:    r.Request.Technician,
			CompletedDate: completed,
			Status:        ReportDraft,
			Results:       results,
			Summary:       reportSummary(r.Request, results),
		}

		return outcome{
			record:   r,
			entity:   notify.EntityReport,
			entityID: r.Report.ID,
			action:   ActionReportGenerated,
			message:  fmt.Sprintf("Report %s drafted for %s", r.Report.ID, r.Request.PatientRef),
		}, nil
	})
	if err != nil {
		return LabReport{}, err
	}
	return *rec.Report, nil
}

// ApproveReport marks a draft ready to send.
func (e *Engine) ApproveReport(ctx context.Context, id string) (LabReport, error) {
	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if err := reportCan(r, ReportReady, "approve"); err != nil {
			return outcome{}, err
		}

		r.Report.Status = ReportReady
		r.Report.ApprovedAt = &now

		return outcome{
			record:   r,
			entity:   notify.EntityReport,
			entityID: r.Report.ID,
			action:   ActionReportApproved,
			message:  fmt.Sprintf("Report %s ready", r.Report.ID),
		}, nil
	})
	if err != nil {
		return LabReport{}, err
	}
	return *rec.Report, nil
}

// SendReport delivers a ready report. Nothing about the request changes after this.
func (e *Engine) SendReport(ctx context.Context, id string) (LabReport, error) {
	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if err := reportCan(r, ReportSent, "send"); err != nil {
			return outcome{}, err
		}

		r.Report.Status = ReportSent
		r.Report.SentAt = &now

		return outcome{
			record:   r,
			entity:   notify.EntityReport,
			entityID: r.Report.ID,
			action:   ActionReportSent,
			message:  fmt.Sprintf("Report %s sent to %s", r.Report.ID, r.Request.RequestingProviderRef),
		}, nil
	})
	if err != nil {
		return LabReport{}, err
	}
	return *rec.Report, nil
}

// GenerateInvoice bills an accepted request. Asking again returns the same invoice.
func (e *Engine) GenerateInvoice(ctx context.Context, id string) (Invoice, error) {
	rec, err := e.transition(ctx, id, func(r Record, now time.Time) (outcome, error) {
		if r.Invoice != nil {
			return outcome{}, errUnchanged
		}
		if r.Report != nil && r.Report.Status == ReportSent {
			return outcome{}, apperr.InvalidTransition("an invoice against a lab report", r.Report.Status, "issue")
		}
		switch r.Request.Status {
		case RequestPending, RequestRejected:
			return outcome{}, apperr.InvalidTransition("an invoice for test request", r.Request.Status, "issue")
		case RequestAccepted, RequestInProgress, RequestCompleted:
		}

		inv := buildInvoice(e.invoiceIDs.Next(), r.Request, e.catalog.Lookup(r.Request.TestType), now)
		r.Invoice = &inv

		return outcome{
			record:   r,
			entity:   notify.EntityTestRequest,
			entityID: id,
			action:   ActionInvoiceIssued,
			message:  fmt.Sprintf("Invoice %s issued for %s", inv.Number, r.Request.PatientRef),
		}, nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return *rec.Invoice, nil
}

// GenerateReportAsync drafts the report after the simulated backend delay.
// The returned future is pending immediately.
func (e *Engine) GenerateReportAsync(ctx context.Context, id, results string) *task.Future[LabReport] {
	ctx = context.WithoutCancel(ctx)
	return task.After(e.delay, func() (LabReport, error) {
		return e.GenerateReport(ctx, id, results)
	})
}

// SendReportAsync delivers the report after the simulated backend delay.
func (e *Engine) SendReportAsync(ctx context.Context, id string) *task.Future[LabReport] {
	ctx = context.WithoutCancel(ctx)
	return task.After(e.delay, func() (LabReport, error) {
		return e.SendReport(ctx, id)
	})
}

func (e *Engine) Get(_ context.Context, id string) (Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.records[id]
	if !ok {
		return Record{}, apperr.NotFound("test request", id)
	}
	return r.clone(), nil
}

// List returns requests newest first, optionally only those in status.
func (e *Engine) List(_ context.Context, status RequestStatus) []TestRequest {
	e.mu.RLock()
	out := make([]TestRequest, 0, len(e.records))
	for _, r := range e.records {
		if status == "" || r.Request.Status == status {
			out = append(out, r.clone().Request)
		}
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].RequestDate.After(out[j].RequestDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (e *Engine) Sample(ctx context.Context, id string) (SampleCollection, error) {
	r, err := e.Get(ctx, id)
	if err != nil {
		return SampleCollection{}, err
	}
	if r.Sample == nil {
		return SampleCollection{}, apperr.NotFound("sample for test request", id)
	}
	return *r.Sample, nil
}

func (e *Engine) Report(ctx context.Context, id string) (LabReport, error) {
	r, err := e.Get(ctx, id)
	if err != nil {
		return LabReport{}, err
	}
	if r.Report == nil {
		return LabReport{}, apperr.NotFound("report for test request", id)
	}
	return *r.Report, nil
}

func (e *Engine) Stats() stats.Counts {
	return e.tracker.Total()
}

// RecomputeStats derives the counters from the records themselves.
func (e *Engine) RecomputeStats() stats.Counts {
	e.mu.RLock()
	all := make([]Record, 0, len(e.records))
	for _, r := range e.records {
		all = append(all, r)
	}
	e.mu.RUnlock()

	return stats.Compute(all, classifyRecord)
}

type outcome struct {
	record   Record
	entity   string
	entityID string
	action   string
	message  string
}

// transition runs step on a private copy of the record under the record's
// lock. Nothing is written unless step succeeds.
func (e *Engine) transition(ctx context.Context, id string, step func(r Record, now time.Time) (outcome, error)) (Record, error) {
	var out outcome
	unchanged := false

	err := e.locker.WithLock(ctx, lockKey(id), func(lockCtx context.Context) error {
		e.mu.RLock()
		current, ok := e.records[id]
		e.mu.RUnlock()
		if !ok {
			return apperr.NotFound("test request", id)
		}

		next, err := step(current.clone(), e.clock.Now())
		if errors.Is(err, errUnchanged) {
			out.record = current
			unchanged = true
			return nil
		}
		if err != nil {
			return err
		}

		e.mu.Lock()
		e.records[id] = next.record
		e.mu.Unlock()

		e.commitLocked(lockCtx, next)
		out = next
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	if !unchanged {
		e.announce(ctx, out)
	}
	return out.record.clone(), nil
}

// commitLocked updates the counters and the snapshot after a write. Callers
// hold the record lock, so writers on one id land in order.
func (e *Engine) commitLocked(ctx context.Context, o outcome) {
	e.tracker.Set(o.record.Request.ID, classifyRecord(o.record))
	e.persist(ctx)
}

func (e *Engine) announce(ctx context.Context, o outcome) {
	e.publisher.Publish(ctx, notify.Event{
		EntityType: o.entity,
		EntityID:   o.entityID,
		Action:     o.action,
		Message:    o.message,
		Timestamp:  e.clock.Now(),
		Payload:    o.record,
	})
}

func (e *Engine) persist(ctx context.Context) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	e.mu.RLock()
	all := make([]Record, 0, len(e.records))
	for _, r := range e.records {
		all = append(all, r)
	}
	e.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].Request.ID > all[j].Request.ID
	})

	if err := kv.SetJSON(ctx, e.store, SnapshotKey, all); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist lab snapshot")
	}
}

func (e *Engine) activeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, r := range e.records {
		if r.Request.Status == RequestAccepted || r.Request.Status == RequestInProgress {
			n++
		}
	}
	return n
}

func sampleCan(r Record, next SampleStatus, action string) error {
	if r.Sample == nil {
		return apperr.InvalidTransition("sample", "none", action)
	}
	if !r.Sample.Status.canBecome(next) {
		return apperr.InvalidTransition("sample", r.Sample.Status, action)
	}
	return nil
}

func reportCan(r Record, next ReportStatus, action string) error {
	if r.Report == nil {
		return apperr.InvalidTransition("report", "none", action)
	}
	if !r.Report.Status.canBecome(next) {
		return apperr.InvalidTransition("report", r.Report.Status, action)
	}
	return nil
}

func lockKey(id string) string {
	return "test_request:" + id
}

func (r Record) clone() Record {
	out := r
	if r.Request.Assignment != nil {
		a := *r.Request.Assignment
		out.Request.Assignment = &a
	}
	if r.Sample != nil {
		s := *r.Sample
		s.Barcodes = append([]string(nil), r.Sample.Barcodes...)
		out.Sample = &s
	}
	if r.Labels != nil {
		l := *r.Labels
		l.Labels = append([]Label(nil), r.Labels.Labels...)
		out.Labels = &l
	}
	if r.Report != nil {
		rep := *r.Report
		out.Report = &rep
	}
	if r.Invoice != nil {
		inv := *r.Invoice
		inv.Lines = append([]InvoiceLine(nil), r.Invoice.Lines...)
		out.Invoice = &inv
	}
	return out
}
