package labflow

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
	"github.com/hackgods/clinical-workflow-scheduling/internal/lock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
	"github.com/hackgods/clinical-workflow-scheduling/internal/stats"
	"github.com/hackgods/clinical-workflow-scheduling/internal/task"
)

type recordingPublisher struct {
	events []notify.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev notify.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) actions() []string {
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type failingAllocator struct{}

func (failingAllocator) Allocate(Allocation) (QueueAssignment, error) {
	return QueueAssignment{}, errors.New("no technicians on shift")
}

// afterUnlockLocker runs a queued action right after the next release of a
// key, before the releasing caller gets control back.
type afterUnlockLocker struct {
	*lock.Memory

	mu    sync.Mutex
	after map[string]func()
}

func newAfterUnlockLocker() *afterUnlockLocker {
	return &afterUnlockLocker{Memory: lock.NewMemory(), after: make(map[string]func())}
}

func (l *afterUnlockLocker) then(key string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.after[key] = fn
}

func (l *afterUnlockLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := l.Memory.WithLock(ctx, key, fn)

	l.mu.Lock()
	next := l.after[key]
	delete(l.after, key)
	l.mu.Unlock()

	if next != nil {
		next()
	}
	return err
}

type fixture struct {
	engine *Engine
	store  *kv.MemoryStore
	pub    *recordingPublisher
	clock  *clock.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: kv.NewMemoryStore(),
		pub:   &recordingPublisher{},
		clock: clock.NewManual(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
	}
	f.engine = NewEngine(Deps{
		Store:     f.store,
		Publisher: f.pub,
		Clock:     f.clock,
		Logger:    zerolog.Nop(),
	})
	return f
}

func (f *fixture) order(t *testing.T, testType string, urgency Urgency) TestRequest {
	t.Helper()
	req, err := f.engine.Create(context.Background(), Order{
		PatientRef:  "PAT-1",
		ProviderRef: "dr-ray",
		TestType:    testType,
		Urgency:     string(urgency),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

// processed drives a request through to CompleteProcessing.
func (f *fixture) processed(t *testing.T, testType string) TestRequest {
	t.Helper()
	ctx := context.Background()

	req := f.order(t, testType, UrgencyNormal)
	steps := []func() error{
		func() error { _, err := f.engine.Accept(ctx, req.ID); return err },
		func() error {
			_, _, err := f.engine.CollectSample(ctx, req.ID, SampleDetails{CollectedBy: "Nurse Kim", Location: "Room 4"})
			return err
		},
		func() error { _, err := f.engine.ConfirmCollection(ctx, req.ID, "5 mL"); return err },
		func() error { _, err := f.engine.StartProcessing(ctx, req.ID); return err },
		func() error { _, err := f.engine.CompleteProcessing(ctx, req.ID); return err },
	}
	for i, step := range steps {
		f.clock.Advance(time.Minute)
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return req
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		order Order
	}{
		{"missing patient", Order{ProviderRef: "dr-ray", TestType: "Lipid Panel"}},
		{"missing provider", Order{PatientRef: "PAT-1", TestType: "Lipid Panel"}},
		{"missing test type", Order{PatientRef: "PAT-1", ProviderRef: "dr-ray"}},
		{"unknown urgency", Order{PatientRef: "PAT-1", ProviderRef: "dr-ray", TestType: "Lipid Panel", Urgency: "asap"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.Create(context.Background(), tt.order); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if got := len(f.engine.List(context.Background(), "")); got != 0 {
		t.Fatalf("failed orders were stored: %d", got)
	}
}

func TestCreateUsesCatalogDefaults(t *testing.T) {
	f := newFixture(t)

	req := f.order(t, "urinalysis", "")
	if req.Status != RequestPending || req.Urgency != UrgencyNormal {
		t.Fatalf("unexpected initial state %+v", req)
	}
	if req.TestType != "Urinalysis" || req.SampleType != "Urine" {
		t.Fatalf("catalog not applied: %+v", req)
	}
	if !strings.HasPrefix(req.ID, "TR-") {
		t.Fatalf("unexpected id %q", req.ID)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "Lipid Panel", UrgencyNormal)

	for _, reason := range []string{"", "   "} {
		if _, err := f.engine.Reject(ctx, req.ID, reason); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("reason %q: expected validation error, got %v", reason, err)
		}
	}

	got, _ := f.engine.Get(ctx, req.ID)
	if got.Request.Status != RequestPending {
		t.Fatalf("status changed to %s", got.Request.Status)
	}

	rejected, err := f.engine.Reject(ctx, req.ID, "sample type not supported")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != RequestRejected || rejected.RejectionReason != "sample type not supported" {
		t.Fatalf("unexpected rejected request %+v", rejected)
	}

	if _, err := f.engine.Accept(ctx, req.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("accepting a rejected request: expected invalid transition, got %v", err)
	}
}

func TestAcceptTwiceIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "Complete Blood Count", UrgencyNormal)
	accepted, err := f.engine.Accept(ctx, req.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := f.engine.Accept(ctx, req.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	got, _ := f.engine.Get(ctx, req.ID)
	if got.Request.Status != RequestAccepted || got.Request.Technician != accepted.Technician {
		t.Fatalf("second accept changed the request: %+v", got.Request)
	}
}

func TestAcceptAssignsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	first := f.order(t, "Complete Blood Count", UrgencyNormal)
	second := f.order(t, "Lipid Panel", UrgencyNormal)

	a, _ := f.engine.Accept(ctx, first.ID)
	b, _ := f.engine.Accept(ctx, second.ID)

	for _, req := range []TestRequest{a, b} {
		qa := req.Assignment
		if qa == nil || qa.Technician == "" || qa.Station == "" || req.Technician != qa.Technician {
			t.Fatalf("incomplete assignment on %s: %+v", req.ID, qa)
		}
		if !qa.EstimatedStart.After(now) || !qa.EstimatedCompletion.After(qa.EstimatedStart) {
			t.Fatalf("estimates not increasing from now: %+v", qa)
		}
	}
	if a.Assignment.Position != 1 || b.Assignment.Position != 2 {
		t.Fatalf("unexpected queue positions %d, %d", a.Assignment.Position, b.Assignment.Position)
	}
	if a.Technician == b.Technician {
		t.Fatal("technicians not rotated")
	}
}

func TestAcceptAllocationFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	engine := NewEngine(Deps{Allocator: failingAllocator{}, Clock: f.clock, Logger: zerolog.Nop()})
	req, err := engine.Create(ctx, Order{PatientRef: "PAT-1", ProviderRef: "dr-ray", TestType: "HbA1c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := engine.Accept(ctx, req.ID); err == nil {
		t.Fatal("expected allocation error")
	}
	got, _ := engine.Get(ctx, req.ID)
	if got.Request.Status != RequestPending || got.Request.Assignment != nil {
		t.Fatalf("failed accept changed the request: %+v", got.Request)
	}
}

func TestCollectSampleLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "Blood Culture", UrgencyUrgent)
	if _, _, err := f.engine.CollectSample(ctx, req.ID, SampleDetails{}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("collect before accept: expected invalid transition, got %v", err)
	}

	f.engine.Accept(ctx, req.ID)
	sample, labels, err := f.engine.CollectSample(ctx, req.ID, SampleDetails{CollectedBy: "Nurse Kim"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if sample.Status != SamplePending {
		t.Fatalf("expected pending sample, got %s", sample.Status)
	}
	if len(labels.Labels) != 2 || len(sample.Barcodes) != 2 {
		t.Fatalf("expected one label per container, got %d labels", len(labels.Labels))
	}

	seen := make(map[string]bool)
	other := f.order(t, "Blood Culture", UrgencyNormal)
	f.engine.Accept(ctx, other.ID)
	_, otherLabels, _ := f.engine.CollectSample(ctx, other.ID, SampleDetails{})
	for _, b := range append(labels.Barcodes(), otherLabels.Barcodes()...) {
		if seen[b] {
			t.Fatalf("duplicate barcode %s", b)
		}
		seen[b] = true
	}

	if _, _, err := f.engine.CollectSample(ctx, req.ID, SampleDetails{}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second collect: expected invalid transition, got %v", err)
	}
}

func TestReportRequiresCompletedProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "Lipid Panel", UrgencyNormal)
	f.engine.Accept(ctx, req.ID)
	f.engine.CollectSample(ctx, req.ID, SampleDetails{})
	f.engine.ConfirmCollection(ctx, req.ID, "")
	f.engine.StartProcessing(ctx, req.ID)

	if _, err := f.engine.GenerateReport(ctx, req.ID, "LDL 130 mg/dL"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.engine.Report(ctx, req.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("report exists after failed generation: %v", err)
	}
	if s, _ := f.engine.Sample(ctx, req.ID); s.Status != SampleProcessing {
		t.Fatalf("sample status changed to %s", s.Status)
	}
}

func TestFullWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.processed(t, "Complete Blood Count")

	rec, _ := f.engine.Get(ctx, req.ID)
	if rec.Request.Status != RequestCompleted || rec.Sample.Status != SampleCompleted || rec.Request.CompletedAt == nil {
		t.Fatalf("processing did not complete both entities: %+v / %+v", rec.Request, rec.Sample)
	}

	report, err := f.engine.GenerateReport(ctx, req.ID, "WBC 6.1, RBC 4.8")
	if err != nil {
		t.Fatalf("generate report: %v", err)
	}
	if report.Status != ReportDraft || report.Technician != rec.Request.Technician || !strings.Contains(report.Summary, "WBC 6.1") {
		t.Fatalf("unexpected report %+v", report)
	}

	if _, err := f.engine.SendReport(ctx, req.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("sending a draft: expected invalid transition, got %v", err)
	}
	if _, err := f.engine.ApproveReport(ctx, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	sent, err := f.engine.SendReport(ctx, req.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Status != ReportSent || sent.SentAt == nil {
		t.Fatalf("unexpected sent report %+v", sent)
	}

	for name, op := range map[string]func() error{
		"approve":  func() error { _, err := f.engine.ApproveReport(ctx, req.ID); return err },
		"send":     func() error { _, err := f.engine.SendReport(ctx, req.ID); return err },
		"generate": func() error { _, err := f.engine.GenerateReport(ctx, req.ID, ""); return err },
		"accept":   func() error { _, err := f.engine.Accept(ctx, req.ID); return err },
		"reject":   func() error { _, err := f.engine.Reject(ctx, req.ID, "late"); return err },
	} {
		if err := op(); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("%s after send: expected invalid transition, got %v", name, err)
		}
	}

	want := []string{
		ActionCreated, ActionAccepted, ActionSampleRequested, ActionSampleCollected,
		ActionProcessingStarted, ActionProcessingComplete, ActionReportGenerated,
		ActionReportApproved, ActionReportSent,
	}
	if got := f.pub.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events\n got %v\nwant %v", got, want)
	}
}

func TestInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "Lipid Panel", UrgencyHigh)
	if _, err := f.engine.GenerateInvoice(ctx, req.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("invoice before accept: expected invalid transition, got %v", err)
	}

	f.engine.Accept(ctx, req.ID)
	inv, err := f.engine.GenerateInvoice(ctx, req.ID)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	// 4000 test + 1200 collection + 25% of 4000
	if inv.TotalCents != 6200 || len(inv.Lines) != 3 {
		t.Fatalf("unexpected invoice %+v", inv)
	}

	events := len(f.pub.events)
	again, err := f.engine.GenerateInvoice(ctx, req.ID)
	if err != nil || again.Number != inv.Number {
		t.Fatalf("second invoice differs: %+v, %v", again, err)
	}
	if len(f.pub.events) != events {
		t.Fatal("repeat invoice published an event")
	}
}

func TestTrackerUpdatedOncePerTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.order(t, "HbA1c", UrgencyUrgent)
	before := f.engine.tracker.Updates()

	f.engine.Accept(ctx, req.ID)
	if got := f.engine.tracker.Updates() - before; got != 1 {
		t.Fatalf("accept applied %d tracker updates", got)
	}

	before = f.engine.tracker.Updates()
	f.engine.Accept(ctx, req.ID)
	if got := f.engine.tracker.Updates() - before; got != 0 {
		t.Fatalf("failed accept applied %d tracker updates", got)
	}

	if got := f.engine.Stats(); got != (stats.Counts{InProgress: 1, Urgent: 1}) {
		t.Fatalf("unexpected stats %+v", got)
	}
}

var statusRank = map[RequestStatus]int{
	RequestPending:    0,
	RequestAccepted:   1,
	RequestInProgress: 2,
	RequestCompleted:  3,
	RequestRejected:   3,
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	urgencies := []Urgency{UrgencyNormal, UrgencyHigh, UrgencyUrgent}
	for i := 0; i < 8; i++ {
		ids = append(ids, f.order(t, "Basic Metabolic Panel", urgencies[i%3]).ID)
	}

	actions := []func(id string) error{
		func(id string) error { _, err := f.engine.Accept(ctx, id); return err },
		func(id string) error { _, err := f.engine.Reject(ctx, id, "duplicate order"); return err },
		func(id string) error { _, err := f.engine.AssignTechnician(ctx, id, "Ana Ruiz"); return err },
		func(id string) error { _, _, err := f.engine.CollectSample(ctx, id, SampleDetails{}); return err },
		func(id string) error { _, err := f.engine.ConfirmCollection(ctx, id, "3 mL"); return err },
		func(id string) error { _, err := f.engine.StartProcessing(ctx, id); return err },
		func(id string) error { _, err := f.engine.CompleteProcessing(ctx, id); return err },
		func(id string) error { _, err := f.engine.GenerateReport(ctx, id, ""); return err },
		func(id string) error { _, err := f.engine.ApproveReport(ctx, id); return err },
		func(id string) error { _, err := f.engine.SendReport(ctx, id); return err },
	}

	for step := 0; step < 600; step++ {
		f.clock.Advance(time.Second)
		id := ids[rng.Intn(len(ids))]

		before, _ := f.engine.Get(ctx, id)
		err := actions[rng.Intn(len(actions))](id)
		after, _ := f.engine.Get(ctx, id)

		if err != nil {
			if !errors.Is(err, apperr.ErrInvalidTransition) {
				t.Fatalf("step %d: unexpected error %v", step, err)
			}
			if after.Request.Status != before.Request.Status {
				t.Fatalf("step %d: failed action changed status %s -> %s", step, before.Request.Status, after.Request.Status)
			}
		}
		if statusRank[after.Request.Status] < statusRank[before.Request.Status] {
			t.Fatalf("step %d: status moved back %s -> %s", step, before.Request.Status, after.Request.Status)
		}
		if before.Request.Status.Terminal() && after.Request.Status != before.Request.Status {
			t.Fatalf("step %d: terminal status changed", step)
		}

		if cached, fresh := f.engine.Stats(), f.engine.RecomputeStats(); cached != fresh {
			t.Fatalf("step %d: cached stats %+v != recomputed %+v", step, cached, fresh)
		}
	}
}

func TestBusyRecordRefusesSecondAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locker := lock.NewMemory()
	engine := NewEngine(Deps{Locker: locker, Clock: f.clock, Logger: zerolog.Nop()})
	req, _ := engine.Create(ctx, Order{PatientRef: "PAT-1", ProviderRef: "dr-ray", TestType: "HbA1c"})

	err := locker.WithLock(ctx, lockKey(req.ID), func(context.Context) error {
		_, err := engine.Accept(ctx, req.ID)
		return err
	})
	if !errors.Is(err, lock.ErrLockNotAcquired) {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestAsyncReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.delay = 20 * time.Millisecond
	req := f.processed(t, "Thyroid Panel")

	fut := f.engine.GenerateReportAsync(ctx, req.ID, "TSH 2.1")
	if fut.State() != task.StatePending {
		t.Fatalf("expected pending future, got %s", fut.State())
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	report, err := fut.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if report.Status != ReportDraft || fut.State() != task.StateResolved {
		t.Fatalf("unexpected result %+v (%s)", report, fut.State())
	}

	// Sending a draft fails, and the failure comes back through the future.
	_, err = f.engine.SendReportAsync(ctx, req.ID).Wait(waitCtx)
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from future, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.processed(t, "Urinalysis")
	pending := f.order(t, "Lipid Panel", UrgencyUrgent)

	fresh := NewEngine(Deps{Store: f.store, Clock: clock.NewManual(time.Unix(0, 0)), Logger: zerolog.Nop()})
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	rec, err := fresh.Get(ctx, done.ID)
	if err != nil || rec.Sample == nil || rec.Request.Status != RequestCompleted {
		t.Fatalf("restored record incomplete: %+v, %v", rec, err)
	}
	if got := fresh.Stats(); got != (stats.Counts{Pending: 1, Completed: 1, Urgent: 1}) {
		t.Fatalf("unexpected restored stats %+v", got)
	}

	next, _ := fresh.Create(ctx, Order{PatientRef: "PAT-2", ProviderRef: "dr-ray", TestType: "HbA1c"})
	if next.ID <= pending.ID {
		t.Fatalf("new id %s does not follow restored %s", next.ID, pending.ID)
	}

	// next was ordered on the frozen 1970 clock, so it sorts last.
	if got := fresh.List(ctx, RequestPending); len(got) != 2 || got[0].ID != pending.ID || got[1].ID != next.ID {
		t.Fatalf("unexpected pending list %+v", got)
	}
}

func TestStatsSurviveBackToBackTransitions(t *testing.T) {
	ctx := context.Background()
	locker := newAfterUnlockLocker()
	engine := NewEngine(Deps{
		Locker: locker,
		Store:  kv.NewMemoryStore(),
		Clock:  clock.NewManual(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
		Logger: zerolog.Nop(),
	})

	req, err := engine.Create(ctx, Order{PatientRef: "PAT-1", ProviderRef: "dr-ray", TestType: "HbA1c", Urgency: string(UrgencyUrgent)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Accept(ctx, req.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, _, err := engine.CollectSample(ctx, req.ID, SampleDetails{CollectedBy: "Nurse Kim", Location: "Room 4"}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if _, err := engine.ConfirmCollection(ctx, req.ID, "5 mL"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var completeErr error
	locker.then(lockKey(req.ID), func() {
		_, completeErr = engine.CompleteProcessing(ctx, req.ID)
	})
	if _, err := engine.StartProcessing(ctx, req.ID); err != nil {
		t.Fatalf("start processing: %v", err)
	}
	if completeErr != nil {
		t.Fatalf("complete processing: %v", completeErr)
	}

	rec, _ := engine.Get(ctx, req.ID)
	if rec.Request.Status != RequestCompleted {
		t.Fatalf("expected completed request, got %s", rec.Request.Status)
	}
	if cached, fresh := engine.Stats(), engine.RecomputeStats(); cached != fresh {
		t.Fatalf("cached stats %+v != recomputed %+v", cached, fresh)
	}

	var saved []Record
	if _, err := kv.GetJSON(ctx, engine.store, SnapshotKey, &saved); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(saved) != 1 || saved[0].Request.Status != RequestCompleted {
		t.Fatalf("snapshot out of date: %+v", saved)
	}
}

func TestInvoiceAfterReportSent(t *testing.T) {
	tests := []struct {
		name          string
		invoiceBefore bool
		wantErr       error
	}{
		{"never invoiced", false, apperr.ErrInvalidTransition},
		{"invoiced before send", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			req := f.processed(t, "Lipid Panel")
			var issued Invoice
			if tt.invoiceBefore {
				inv, err := f.engine.GenerateInvoice(ctx, req.ID)
				if err != nil {
					t.Fatalf("invoice: %v", err)
				}
				issued = inv
			}
			if _, err := f.engine.GenerateReport(ctx, req.ID, "LDL 110"); err != nil {
				t.Fatalf("report: %v", err)
			}
			if _, err := f.engine.ApproveReport(ctx, req.ID); err != nil {
				t.Fatalf("approve: %v", err)
			}
			if _, err := f.engine.SendReport(ctx, req.ID); err != nil {
				t.Fatalf("send: %v", err)
			}

			events := len(f.pub.events)
			inv, err := f.engine.GenerateInvoice(ctx, req.ID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				rec, _ := f.engine.Get(ctx, req.ID)
				if rec.Invoice != nil {
					t.Fatalf("refused invoice was stored: %+v", rec.Invoice)
				}
			} else if err != nil || inv.Number != issued.Number {
				t.Fatalf("expected existing invoice %s, got %+v, %v", issued.Number, inv, err)
			}
			if len(f.pub.events) != events {
				t.Fatal("invoice after send published an event")
			}
		})
	}
}

func TestConcurrentAcceptsGetDistinctPositions(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(Deps{
		Clock:  clock.NewManual(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)),
		Logger: zerolog.Nop(),
	})

	const n = 12
	ids := make([]string, n)
	for i := range ids {
		req, err := engine.Create(ctx, Order{PatientRef: "PAT-1", ProviderRef: "dr-ray", TestType: "Lipid Panel"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids[i] = req.ID
	}

	positions := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			req, err := engine.Accept(ctx, id)
			if err == nil {
				positions[i] = req.Assignment.Position
			}
			errs[i] = err
		}(i, id)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i, pos := range positions {
		if errs[i] != nil {
			t.Fatalf("accept %s: %v", ids[i], errs[i])
		}
		if seen[pos] {
			t.Fatalf("queue position %d handed out twice: %v", pos, positions)
		}
		seen[pos] = true
	}
	for pos := 1; pos <= n; pos++ {
		if !seen[pos] {
			t.Fatalf("queue position %d missing: %v", pos, positions)
		}
	}
}
