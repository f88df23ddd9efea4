package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueReports is the asynq queue for report rendering.
	QueueReports = "reports"
	// TaskGoodsExport renders a goods report into Redis.
	TaskGoodsExport = "report:goods_export"
)

// ExportPayload is the task body of TaskGoodsExport.
type ExportPayload struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewExportTask builds the asynq task for an export.
func NewExportTask(p ExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export payload: %w", err)
	}
	return asynq.NewTask(TaskGoodsExport, data, asynq.Queue(QueueReports), asynq.MaxRetry(3)), nil
}
