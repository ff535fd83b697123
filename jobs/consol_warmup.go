package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/caixa/internal/consol"
	jobmetrics "github.com/odyssey-erp/caixa/internal/jobs"
	"github.com/odyssey-erp/caixa/internal/ledger"
)

// Consolidator builds consolidated views; a cached service fills its cache
// as a side effect.
type Consolidator interface {
	Consolidate(ctx context.Context, date time.Time, unitIDs []int64) (consol.ConsolidatedSummary, error)
}

// ConsolWarmupJob precomputes the consolidated view so the first reader of
// the day does not pay for the fan-out.
type ConsolWarmupJob struct {
	Service  Consolidator
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Location *time.Location
	clock    func() time.Time
}

// NewConsolWarmupJob constructs the job handler.
func NewConsolWarmupJob(service Consolidator, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolWarmupJob {
	return &ConsolWarmupJob{Service: service, Location: loc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the warm-up.
func (j *ConsolWarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consol warmup: dependencies not configured")
	}
	payload, err := decodeDatePayload(task)
	if err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskConsolWarmup)
	date, err := resolveDate(payload.Date, j.now(), j.Location)
	if err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	start := j.now()
	view, err := j.Service.Consolidate(ctx, date, payload.Units)
	if err != nil {
		j.log().Error("warm consolidated view", slog.String("date", date.Format(ledger.DateLayout)), slog.Any("error", err))
		if errors.Is(err, ledger.ErrUnknownUnit) {
			return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	day := date.Format(ledger.DateLayout)
	j.metrics().AddWarmed(day)
	j.log().Info("consolidated view warmed",
		slog.String("date", day),
		slog.Int("units", len(view.Units)),
		slog.Int64("gross_revenue", view.Totals.GrossRevenue),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return tracker.End(nil)
}

func (j *ConsolWarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolWarmupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolWarmup))
	}
	return slog.Default().With(slog.String("job", TaskConsolWarmup))
}

func (j *ConsolWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
