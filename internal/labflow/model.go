package labflow

import (
	"strings"
	"time"

	"github.com/hackgods/clinical-workflow-scheduling/internal/apperr"
	"github.com/hackgods/clinical-workflow-scheduling/internal/stats"
)

type Urgency string

const (
	UrgencyNormal Urgency = "Normal"
	UrgencyHigh   Urgency = "High"
	UrgencyUrgent Urgency = "Urgent"
)

func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return UrgencyNormal, nil
	case "high":
		return UrgencyHigh, nil
	case "urgent":
		return UrgencyUrgent, nil
	default:
		return "", apperr.Validation("unknown urgency %q", s)
	}
}

type RequestStatus string

const (
	RequestPending    RequestStatus = "Pending"
	RequestAccepted   RequestStatus = "Accepted"
	RequestInProgress RequestStatus = "InProgress"
	RequestCompleted  RequestStatus = "Completed"
	RequestRejected   RequestStatus = "Rejected"
)

func ParseRequestStatus(s string) (RequestStatus, error) {
	for _, st := range []RequestStatus{RequestPending, RequestAccepted, RequestInProgress, RequestCompleted, RequestRejected} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", apperr.Validation("unknown request status %q", s)
}

// Terminal statuses accept no further request transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestRejected
}

func (s RequestStatus) canBecome(next RequestStatus) bool {
	switch s {
	case RequestPending:
		return next == RequestAccepted || next == RequestRejected
	case RequestAccepted:
		return next == RequestInProgress
	case RequestInProgress:
		return next == RequestCompleted
	case RequestCompleted, RequestRejected:
		return false
	}
	return false
}

type SampleStatus string

const (
	SamplePending    SampleStatus = "Pending"
	SampleCollected  SampleStatus = "Collected"
	SampleProcessing SampleStatus = "Processing"
	SampleCompleted  SampleStatus = "Completed"
)

func (s SampleStatus) canBecome(next SampleStatus) bool {
	switch s {
	case SamplePending:
		return next == SampleCollected
	case SampleCollected:
		return next == SampleProcessing
	case SampleProcessing:
		return next == SampleCompleted
	case SampleCompleted:
		return false
	}
	return false
}

type ReportStatus string

const (
	ReportDraft ReportStatus = "Draft"
	ReportReady ReportStatus = "Ready"
	ReportSent  ReportStatus = "Sent"
)

func (s ReportStatus) canBecome(next ReportStatus) bool {
	switch s {
	case ReportDraft:
		return next == ReportReady
	case ReportReady:
		return next == ReportSent
	case ReportSent:
		return false
	}
	return false
}

type TestRequest struct {
	ID                    string           `json:"id"`
	PatientRef            string           `json:"patient_ref"`
	RequestingProviderRef string           `json:"requesting_provider_ref"`
	TestType              string           `json:"test_type"`
	Urgency               Urgency          `json:"urgency"`
	Status                RequestStatus    `json:"status"`
	SampleType            string           `json:"sample_type"`
	Instructions          string           `json:"instructions,omitempty"`
	RequestDate           time.Time        `json:"request_date"`
	Technician            string           `json:"technician,omitempty"`
	Assignment            *QueueAssignment `json:"assignment,omitempty"`
	RejectionReason       string           `json:"rejection_reason,omitempty"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

type SampleCollection struct {
	ID            string       `json:"id"`
	TestRequestID string       `json:"test_request_id"`
	CollectedBy   string       `json:"collected_by,omitempty"`
	Volume        string       `json:"volume,omitempty"`
	Container     string       `json:"container"`
	Location      string       `json:"location,omitempty"`
	Status        SampleStatus `json:"status"`
	Barcodes      []string     `json:"barcodes"`
	CollectedAt   *time.Time   `json:"collected_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type LabReport struct {
	ID            string       `json:"id"`
	TestRequestID string       `json:"test_request_id"`
	Technician    string       `json:"technician"`
	CompletedDate time.Time    `json:"completed_date"`
	Status        ReportStatus `json:"status"`
	Results       string       `json:"results"`
	Summary       string       `json:"summary"`
	ApprovedAt    *time.Time   `json:"approved_at,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
}

// Order is a provider's request for a test.
type Order struct {
	PatientRef   string `json:"patient_ref"`
	ProviderRef  string `json:"provider_ref"`
	TestType     string `json:"test_type"`
	Urgency      string `json:"urgency"`
	SampleType   string `json:"sample_type"`
	Instructions string `json:"instructions"`
}

// SampleDetails describes who is drawing the sample and where.
type SampleDetails struct {
	CollectedBy string `json:"collected_by"`
	Location    string `json:"location"`
}

// Record is everything the engine holds for one test request.
type Record struct {
	Request TestRequest       `json:"request"`
	Sample  *SampleCollection `json:"sample,omitempty"`
	Labels  *LabelSet         `json:"labels,omitempty"`
	Report  *LabReport        `json:"report,omitempty"`
	Invoice *Invoice          `json:"invoice,omitempty"`
}

// Classify maps a request onto the dashboard counters. Accepted work counts
// as in progress; urgent requests are counted as urgent until they finish.
func Classify(r TestRequest) stats.Counts {
	var c stats.Counts
	switch r.Status {
	case RequestPending:
		c.Pending = 1
	case RequestAccepted, RequestInProgress:
		c.InProgress = 1
	case RequestCompleted:
		c.Completed = 1
	case RequestRejected:
	}
	if r.Urgency == UrgencyUrgent && !r.Status.Terminal() {
		c.Urgent = 1
	}
	return c
}

func classifyRecord(r Record) stats.Counts {
	return Classify(r.Request)
}
