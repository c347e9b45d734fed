package finding

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"

	"github.com/apirecon/apirecon/ast"
)

// hashKey seeds highwayhash; any fixed 32 bytes work, stability across
// runs is what matters for deterministic ordering.
var hashKey = []byte("apirecon.dedupe.v1.static.calls!")

// Aggregator merges resolved calls into one APICall per distinct
// (method, normalized URL) pair, keeping every location where the call
// recurs and the best confidence seen.
type Aggregator struct {
	byKey map[uint64]*APICall
	order []uint64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byKey: map[uint64]*APICall{}}
}

// Add folds one resolved call into the aggregate.
func (a *Aggregator) Add(call *ResolvedCall) {
	key := highwayhash.Sum64([]byte(DedupeKey(call.Method, call.URL)), hashKey)
	existing, ok := a.byKey[key]
	if !ok {
		a.byKey[key] = &APICall{
			Method:         call.Method,
			URL:            NormalizeURL(call.URL),
			File:           call.Location.File,
			Line:           call.Location.Line,
			Column:         call.Location.Column,
			Sources:        []string{call.Source},
			Confidence:     call.Confidence,
			Authentication: call.Authentication,
			Library:        call.Library,
			RequestBody:    call.RequestBody,
			RequestHeaders: call.RequestHeaders,
			Locations:      []ast.Location{call.Location},
		}
		a.order = append(a.order, key)
		return
	}
	existing.Locations = append(existing.Locations, call.Location)
	if !containsString(existing.Sources, call.Source) {
		existing.Sources = append(existing.Sources, call.Source)
	}
	if call.Confidence.rank() > existing.Confidence.rank() {
		existing.Confidence = call.Confidence
	}
	if existing.Authentication == AuthUnknown && call.Authentication != AuthUnknown {
		existing.Authentication = call.Authentication
	}
	if existing.Library == "" {
		existing.Library = call.Library
	}
	if existing.RequestBody == "" {
		existing.RequestBody = call.RequestBody
	}
	if len(existing.RequestHeaders) == 0 && len(call.RequestHeaders) > 0 {
		existing.RequestHeaders = call.RequestHeaders
	}
}

// Calls returns the merged records sorted by URL then method, so output
// is deterministic regardless of walk order.
func (a *Aggregator) Calls() []*APICall {
	calls := make([]*APICall, 0, len(a.byKey))
	for _, key := range a.order {
		calls = append(calls, a.byKey[key])
	}
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].URL != calls[j].URL {
			return calls[i].URL < calls[j].URL
		}
		return calls[i].Method < calls[j].Method
	})
	for _, call := range calls {
		sort.SliceStable(call.Locations, func(i, j int) bool {
			if call.Locations[i].File != call.Locations[j].File {
				return call.Locations[i].File < call.Locations[j].File
			}
			if call.Locations[i].Line != call.Locations[j].Line {
				return call.Locations[i].Line < call.Locations[j].Line
			}
			return call.Locations[i].Column < call.Locations[j].Column
		})
	}
	return calls
}

// Len returns the number of distinct calls.
func (a *Aggregator) Len() int {
	return len(a.byKey)
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// Summary counts the run's outcomes for the report envelope.
type Summary struct {
	FilesScanned int                `json:"filesScanned"`
	FilesFailed  int                `json:"filesFailed"`
	Candidates   int                `json:"candidatesFound"`
	UniqueCalls  int                `json:"uniqueCalls"`
	ByConfidence map[Confidence]int `json:"byConfidence"`
}

// Report is the run envelope emitted to consumers.
type Report struct {
	RunID       string     `json:"runId"`
	Root        string     `json:"root"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Summary     Summary    `json:"summary"`
	Calls       []*APICall `json:"calls"`
}

// NewReport assembles the envelope from an aggregator and run counters.
func NewReport(root string, filesScanned, filesFailed, candidates int, aggregator *Aggregator) *Report {
	calls := aggregator.Calls()
	byConfidence := map[Confidence]int{}
	for _, call := range calls {
		byConfidence[call.Confidence]++
	}
	return &Report{
		RunID:       uuid.New().String(),
		Root:        root,
		GeneratedAt: time.Now().UTC(),
		Summary: Summary{
			FilesScanned: filesScanned,
			FilesFailed:  filesFailed,
			Candidates:   candidates,
			UniqueCalls:  len(calls),
			ByConfidence: byConfidence,
		},
		Calls: calls,
	}
}
