package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/caixa/internal/jobs"
	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/register"
)

// OpenRegisterLister lists registers still open before a date.
type OpenRegisterLister interface {
	OpenBefore(ctx context.Context, date time.Time) ([]register.Register, error)
}

// RegisterAuditJob reports registers left open past their business day. It
// never closes them; closing is an operator action.
type RegisterAuditJob struct {
	Registers OpenRegisterLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Location  *time.Location
	clock     func() time.Time
}

// NewRegisterAuditJob constructs the job handler.
func NewRegisterAuditJob(registers OpenRegisterLister, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *RegisterAuditJob {
	return &RegisterAuditJob{Registers: registers, Location: loc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the audit.
func (j *RegisterAuditJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Registers == nil {
		return errors.New("register audit: dependencies not configured")
	}
	payload, err := decodeDatePayload(task)
	if err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskRegisterAudit)
	asOf, err := resolveDate(payload.Date, j.now(), j.Location)
	if err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}

	stale, err := j.Registers.OpenBefore(ctx, asOf)
	if err != nil {
		j.log().Error("list open registers", slog.Any("error", err))
		return tracker.End(err)
	}
	counts := make(map[int64]int)
	for _, reg := range stale {
		counts[reg.UnitID]++
		j.log().Warn("register left open",
			slog.Int64("unit_id", reg.UnitID),
			slog.String("date", reg.Date.Format(ledger.DateLayout)),
			slog.String("register_id", reg.ID),
			slog.String("operator", reg.Operator),
		)
	}
	j.metrics().SetStaleOpen(counts)
	j.log().Info("open register audit finished", slog.String("as_of", asOf.Format(ledger.DateLayout)), slog.Int("stale", len(stale)))
	return tracker.End(nil)
}

func (j *RegisterAuditJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RegisterAuditJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRegisterAudit))
	}
	return slog.Default().With(slog.String("job", TaskRegisterAudit))
}

func (j *RegisterAuditJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RegisterAuditJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// resolveDate turns a payload date into a business day. Empty and "today"
// pick the current date in loc.
func resolveDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if raw == "" || raw == "today" {
		if loc == nil {
			loc = time.UTC
		}
		return ledger.Day(now.In(loc)), nil
	}
	return ledger.ParseDay(raw)
}
