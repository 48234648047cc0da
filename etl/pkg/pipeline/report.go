package pipeline

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StageCurate      = "curate"
	StageStandardize = "standardize"
	StageNormalize   = "normalize"
	// StageLoad outcomes are warehouse loads of fact and dimension tables.
	StageLoad = "load"
)

// Stages are the transformation stages in execution order.
var Stages = []string{StageCurate, StageStandardize, StageNormalize}

// FileOutcome is what happened to one file (or warehouse table) in one stage.
type FileOutcome struct {
	Stage  string
	Family string
	Source string
	// Key is the store key written, or the warehouse table loaded.
	Key     string
	RowsIn  int
	RowsOut int
	Err     error
}

func (o FileOutcome) OK() bool {
	return o.Err == nil
}

// Report is the per-run record of file outcomes and dimension results.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []string

	// Dimensions holds the member count of each flushed dimension table.
	Dimensions map[string]int
	// EmptyDimensions received no contribution from any source.
	EmptyDimensions []string

	mu    sync.Mutex
	files []FileOutcome
}

func newReport(runID uuid.UUID, startedAt time.Time, stages []string) *Report {
	return &Report{
		RunID:      runID,
		StartedAt:  startedAt,
		Stages:     slices.Clone(stages),
		Dimensions: make(map[string]int),
	}
}

func (r *Report) add(o FileOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, o)
}

// Files returns every outcome in the order recorded.
func (r *Report) Files() []FileOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.files)
}

func (r *Report) Failed() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Files() {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of successful and failed outcomes of a stage.
func (r *Report) Count(stage string) (ok, failed int) {
	for _, o := range r.Files() {
		if o.Stage != stage {
			continue
		}
		if o.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteSummary prints a human readable summary of the run.
func (r *Report) WriteSummary(w io.Writer) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	for _, stage := range append(slices.Clone(r.Stages), StageLoad) {
		ok, failed := r.Count(stage)
		if ok+failed == 0 {
			continue
		}
		printf("  %-12s %d ok, %d failed\n", stage, ok, failed)
	}

	for _, d := range slices.Sorted(maps.Keys(r.Dimensions)) {
		printf("  dim_%-12s %d members\n", d, r.Dimensions[d])
	}
	for _, d := range r.EmptyDimensions {
		printf("  dim_%-12s no contributions\n", d)
	}

	for _, o := range r.Failed() {
		printf("  FAILED %s %s: %v\n", o.Stage, o.Source, o.Err)
	}
	return err
}
