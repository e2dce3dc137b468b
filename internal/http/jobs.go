package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mkarimi/sms-platform/internal/http/middleware"
	"github.com/mkarimi/sms-platform/internal/progress"
)

// jobStatusHandler returns the live progress snapshot of one dispatch job.
// Job state is process-local; an unknown id means finished-and-evicted or
// never-existed, both of which report 404.
func jobStatusHandler(tracker *progress.Tracker) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := middleware.AccountIDFromCtx(c); !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		jobID := c.Param("id")
		v, ok := tracker.Get(jobID)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
		}

		resp := map[string]any{
			"job_id":        v.ID,
			"status":        v.Status.String(),
			"total":         v.Total,
			"completed":     v.Completed,
			"success_count": v.Success,
			"fail_count":    v.Failed,
			"current_batch": v.CurrentBatch,
			"total_batches": v.TotalBatches,
			"percentage":    v.Percentage,
			"started_at":    v.StartedAt.Format(time.RFC3339),
		}
		if v.EstimatedTime > 0 {
			resp["estimated_time"] = v.EstimatedTime.Round(time.Second).String()
		}
		if v.CompletedAt != nil {
			resp["completed_at"] = v.CompletedAt.Format(time.RFC3339)
		}
		if v.Error != "" {
			resp["error"] = v.Error
		}
		return c.JSON(http.StatusOK, resp)
	}
}
