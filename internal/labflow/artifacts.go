package labflow

import (
	"fmt"
	"time"
)

// Label is one printable container sticker.
type Label struct {
	Barcode    string  `json:"barcode"`
	Container  string  `json:"container"`
	SampleType string  `json:"sample_type"`
	PatientRef string  `json:"patient_ref"`
	TestType   string  `json:"test_type"`
	Urgency    Urgency `json:"urgency"`
}

type LabelSet struct {
	TestRequestID string    `json:"test_request_id"`
	SampleID      string    `json:"sample_id"`
	Labels        []Label   `json:"labels"`
	PrintedAt     time.Time `json:"printed_at"`
}

func (ls LabelSet) Barcodes() []string {
	out := make([]string, len(ls.Labels))
	for i, l := range ls.Labels {
		out[i] = l.Barcode
	}
	return out
}

// buildLabels prints one label per container. Barcodes derive from the
// sample id, which is unique, so they are unique across the engine too.
func buildLabels(req TestRequest, sampleID string, tt TestType, now time.Time) LabelSet {
	containers := tt.Containers
	if len(containers) == 0 {
		containers = defaultTestType.Containers
	}

	ls := LabelSet{TestRequestID: req.ID, SampleID: sampleID, PrintedAt: now}
	for i, c := range containers {
		ls.Labels = append(ls.Labels, Label{
			Barcode:    fmt.Sprintf("%s-%02d", sampleID, i+1),
			Container:  c,
			SampleType: req.SampleType,
			PatientRef: req.PatientRef,
			TestType:   req.TestType,
			Urgency:    req.Urgency,
		})
	}
	return ls
}

type InvoiceLine struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

type Invoice struct {
	Number        string        `json:"number"`
	TestRequestID string        `json:"test_request_id"`
	PatientRef    string        `json:"patient_ref"`
	ProviderRef   string        `json:"provider_ref"`
	Lines         []InvoiceLine `json:"lines"`
	TotalCents    int64         `json:"total_cents"`
	Currency      string        `json:"currency"`
	IssuedAt      time.Time     `json:"issued_at"`
}

const CollectionFeeCents = 1200

// Surcharge on the test price, in percent.
var urgencySurcharge = map[Urgency]int64{
	UrgencyNormal: 0,
	UrgencyHigh:   25,
	UrgencyUrgent: 50,
}

func buildInvoice(number string, req TestRequest, tt TestType, now time.Time) Invoice {
	inv := Invoice{
		Number:        number,
		TestRequestID: req.ID,
		PatientRef:    req.PatientRef,
		ProviderRef:   req.RequestingProviderRef,
		Currency:      "USD",
		IssuedAt:      now,
	}

	inv.Lines = append(inv.Lines, InvoiceLine{Description: req.TestType, AmountCents: tt.PriceCents})
	inv.Lines = append(inv.Lines, InvoiceLine{Description: "Sample collection", AmountCents: CollectionFeeCents})
	if pct := urgencySurcharge[req.Urgency]; pct > 0 {
		inv.Lines = append(inv.Lines, InvoiceLine{
			Description: fmt.Sprintf("%s priority surcharge", req.Urgency),
			AmountCents: tt.PriceCents * pct / 100,
		})
	}

	for _, l := range inv.Lines {
		inv.TotalCents += l.AmountCents
	}
	return inv
}

func reportSummary(req TestRequest, results string) string {
	if results == "" {
		return fmt.Sprintf("%s for %s: no abnormal findings recorded.", req.TestType, req.PatientRef)
	}
	return fmt.Sprintf("%s for %s: %s", req.TestType, req.PatientRef, results)
}
