package patient

import (
	"context"
	"time"
)

// Repository is the persistence adapter for the patient table.
//
// Load reads every row and column. Save replaces the entire stored table,
// schema included, with t. There is no row-level update and no version check:
// two sessions that load, edit and save concurrently race, and the last Save
// wins.
type Repository interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
}

// MetricsRecorder receives store and cache outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	CacheLookup(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (nopMetrics) CacheLookup(bool)                                      {}

var timeNow = time.Now

// observe times an operation and reports it once the returned func runs.
func observe(ctx context.Context, m MetricsRecorder, op string, errp *error) func() {
	start := timeNow()
	return func() {
		m.Observe(ctx, op, *errp == nil, timeNow().Sub(start))
	}
}
