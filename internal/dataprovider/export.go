package dataprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/cargo-backoffice/internal/query"
	"github.com/noah-isme/cargo-backoffice/internal/resilience"
)

const exportNotReady = "EXPORT_NOT_READY"

// ErrExportFailed is returned when the server reports the export as failed.
var ErrExportFailed = errors.New("dataprovider: export failed")

// ExportJob is the server-side state of an asynchronous goods export.
type ExportJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
}

// StartExport queues an export of the goods matching p.
func (c *Client) StartExport(ctx context.Context, p query.Params) (ExportJob, error) {
	values, err := p.Values()
	if err != nil {
		return ExportJob{}, err
	}
	var job ExportJob
	if _, err := c.send(ctx, http.MethodPost, "/reports/goods/exports", values, nil, "", uuid.NewString(), &job); err != nil {
		return ExportJob{}, err
	}
	if job.ID == "" {
		return ExportJob{}, errors.New("dataprovider: export response without id")
	}
	return job, nil
}

// AwaitExport polls the export until its file is ready, then copies it to w.
// The delay between polls starts at interval and backs off exponentially.
func (c *Client) AwaitExport(ctx context.Context, id string, interval time.Duration, w io.Writer) error {
	for attempt := 1; ; attempt++ {
		var buf bytes.Buffer
		err := c.Download(ctx, resourcePath("reports/exports", id), nil, &buf)
		if err == nil {
			_, err = w.Write(buf.Bytes())
			return err
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Code != exportNotReady {
			return err
		}
		var job ExportJob
		if len(apiErr.Details) > 0 && json.Unmarshal(apiErr.Details, &job) == nil && job.Status == "failed" {
			return fmt.Errorf("%w: %s", ErrExportFailed, job.Error)
		}
		c.Logger.Debug().Str("export_id", id).Int("attempt", attempt).Msg("export_not_ready")

		timer := time.NewTimer(resilience.Backoff(interval, attempt, 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
