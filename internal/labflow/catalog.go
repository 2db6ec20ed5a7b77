package labflow

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// TestType describes what a test needs at the bench and what it costs.
type TestType struct {
	Name       string        `json:"name"`
	SampleType string        `json:"sample_type"`
	Containers []string      `json:"containers"`
	PriceCents int64         `json:"price_cents"`
	Turnaround time.Duration `json:"turnaround"`
}

var defaultTestType = TestType{
	SampleType: "Blood",
	Containers: []string{"Plain red-top tube"},
	PriceCents: 3000,
	Turnaround: 24 * time.Hour,
}

type Catalog struct {
	mu    sync.RWMutex
	types map[string]TestType
}

func NewCatalog(types ...TestType) *Catalog {
	c := &Catalog{types: make(map[string]TestType)}
	for _, t := range types {
		c.Register(t)
	}
	return c
}

// DefaultCatalog holds the tests most clinics order.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		TestType{Name: "Complete Blood Count", SampleType: "Blood", Containers: []string{"EDTA lavender-top tube"}, PriceCents: 2500, Turnaround: 4 * time.Hour},
		TestType{Name: "Basic Metabolic Panel", SampleType: "Blood", Containers: []string{"SST gold-top tube"}, PriceCents: 3500, Turnaround: 6 * time.Hour},
		TestType{Name: "Lipid Panel", SampleType: "Blood", Containers: []string{"SST gold-top tube"}, PriceCents: 4000, Turnaround: 12 * time.Hour},
		TestType{Name: "HbA1c", SampleType: "Blood", Containers: []string{"EDTA lavender-top tube"}, PriceCents: 3000, Turnaround: 8 * time.Hour},
		TestType{Name: "Thyroid Panel", SampleType: "Blood", Containers: []string{"SST gold-top tube"}, PriceCents: 5500, Turnaround: 24 * time.Hour},
		TestType{Name: "Urinalysis", SampleType: "Urine", Containers: []string{"Sterile urine cup"}, PriceCents: 1800, Turnaround: 2 * time.Hour},
		TestType{Name: "Blood Culture", SampleType: "Blood", Containers: []string{"Aerobic culture bottle", "Anaerobic culture bottle"}, PriceCents: 8500, Turnaround: 72 * time.Hour},
		TestType{Name: "Coagulation Panel", SampleType: "Blood", Containers: []string{"Sodium citrate light-blue tube"}, PriceCents: 4200, Turnaround: 4 * time.Hour},
	)
}

func (c *Catalog) Register(t TestType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[strings.ToLower(strings.TrimSpace(t.Name))] = t
}

// Lookup is case-insensitive. Unknown names get the default profile under
// the requested name.
func (c *Catalog) Lookup(name string) TestType {
	c.mu.RLock()
	t, ok := c.types[strings.ToLower(strings.TrimSpace(name))]
	c.mu.RUnlock()
	if ok {
		return t
	}
	t = defaultTestType
	t.Name = strings.TrimSpace(name)
	return t
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}
