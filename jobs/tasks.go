package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeKPIRun executes one stored KPI run.
	TaskTypeKPIRun = "kpi:run"
	// TaskTypeKPIRecalc asks the worker to request and enqueue a fresh
	// run over the trailing window. Registered on the nightly cron.
	TaskTypeKPIRecalc = "kpi:recalc"
)

// KPIRunPayload identifies the stored run a worker must execute.
type KPIRunPayload struct {
	RunID int64 `json:"run_id"`
}

// NewKPIRunTask constructs an Asynq task for a stored run.
func NewKPIRunTask(payload KPIRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeKPIRun, data), nil
}

// NewKPIRecalcTask constructs the nightly recompute trigger. It carries
// no payload; the handler resolves the window when the task fires.
func NewKPIRecalcTask() *asynq.Task {
	return asynq.NewTask(TaskTypeKPIRecalc, nil)
}
