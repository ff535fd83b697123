package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/caixa/internal/jobs"
	"github.com/odyssey-erp/caixa/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskRegisterAudit lists registers left open for a past business date.
	TaskRegisterAudit = "register:audit-open"
	// TaskConsolWarmup precomputes the consolidated view for a date.
	TaskConsolWarmup = "consol:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DatePayload scopes a job to a business date. An empty or "today" date
// resolves to the cashier-local current date when the job runs.
type DatePayload struct {
	Date  string  `json:"date,omitempty"`
	Units []int64 `json:"units,omitempty"`
}

// NewRegisterAuditTask creates the open-register audit task.
func NewRegisterAuditTask(asOf string) (*asynq.Task, error) {
	return newDateTask(TaskRegisterAudit, DatePayload{Date: asOf})
}

// NewConsolWarmupTask creates a consolidation warm-up task. No units means
// every active unit.
func NewConsolWarmupTask(date string, units ...int64) (*asynq.Task, error) {
	return newDateTask(TaskConsolWarmup, DatePayload{Date: date, Units: units})
}

// NewIdempotencyCleanupTask creates the key cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

func newDateTask(taskType string, payload DatePayload) (*asynq.Task, error) {
	payload.Date = strings.TrimSpace(payload.Date)
	if payload.Date != "" && payload.Date != "today" {
		if _, err := ledger.ParseDay(payload.Date); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func decodeDatePayload(task *asynq.Task) (DatePayload, error) {
	var payload DatePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DatePayload{}, fmt.Errorf("%s: decode payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
