package containermgr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/previewd/orchestrator/internal/errs"
)

const (
	healthCheckAttempts     = 15
	healthCheckPerAttempt   = 2 * time.Second
	healthCheckInterAttempt = 5 * time.Second
)

// pollHealth polls url up to healthCheckAttempts times, healthCheckPerAttempt
// as the per-request timeout and healthCheckInterAttempt between attempts,
// succeeding on the first 2xx response — grounded on the teacher's
// HTTPHealthChecker (internal/process/healthcheck.go), generalized from a
// single check to the build-loop's retry/backoff shape.
func pollHealth(ctx context.Context, url string) error {
	client := &http.Client{}

	var lastErr error
	for attempt := 1; attempt <= healthCheckAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, healthCheckPerAttempt)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return fmt.Errorf("%w: building health check request: %v", errs.ErrHealthCheckTimeout, err)
		}

		resp, err := client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt == healthCheckAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errs.ErrHealthCheckTimeout, ctx.Err())
		case <-time.After(healthCheckInterAttempt):
		}
	}
	return fmt.Errorf("%w: after %d attempts: %v", errs.ErrHealthCheckTimeout, healthCheckAttempts, lastErr)
}
