// Package frontend is the outbound HTTP client for the judge frontend:
// task-info downloads, checksum queries and verdict reports.
package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
	"cpjudge/pkg/logger"

	"go.uber.org/zap"
)

const (
	authHeader = "X-Auth-Token"

	// maxBadGatewayRetries bounds retries on 502 responses. Connection
	// errors on terminal reports are retried without bound so a verdict
	// is delivered at least once.
	maxBadGatewayRetries = 5
)

// Client talks to the frontend. All requests carry the shared secret.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client

	// retryInterval seeds the exponential backoff. Shortened in tests.
	retryInterval time.Duration
}

// New creates a frontend client. baseURL must not end with a slash.
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL:       baseURL,
		secret:        secret,
		http:          &http.Client{Timeout: 60 * time.Second},
		retryInterval: time.Second,
	}
}

// statusError marks an HTTP response with a non-2xx status.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("frontend returned %d for %s", e.status, e.url)
}

// GetChecksum fetches the frontend-advertised checksum for a task.
func (c *Client) GetChecksum(ctx context.Context, taskID string) (string, error) {
	url := fmt.Sprintf("%s/task/%s/info/checksum", c.baseURL, taskID)

	var payload struct {
		Checksum string `json:"checksum"`
	}
	op := func() error {
		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return retryOn502(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return backoff.Permanent(appErr.Wrapf(err, appErr.FrontendError, "decode checksum response failed"))
		}
		return nil
	}
	if err := backoff.Retry(op, c.boundedBackOff(ctx)); err != nil {
		return "", appErr.Wrapf(err, appErr.FrontendError, "get checksum for task %s failed", taskID)
	}
	return payload.Checksum, nil
}

// DownloadTaskInfo streams the task-info payload into w. The body is
// written as it arrives so large snapshots never sit in memory; a
// truncated transfer is caught by the caller's checksum validation.
func (c *Client) DownloadTaskInfo(ctx context.Context, taskID string, w io.Writer) error {
	url := fmt.Sprintf("%s/task/%s/info", c.baseURL, taskID)

	var resp *http.Response
	op := func() error {
		r, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if err := checkStatus(r); err != nil {
			_ = r.Body.Close()
			return retryOn502(err)
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, c.boundedBackOff(ctx)); err != nil {
		return appErr.Wrapf(err, appErr.FrontendError, "get task info for task %s failed", taskID)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return appErr.Wrapf(err, appErr.FrontendError, "stream task info for task %s failed", taskID)
	}
	return nil
}

// Report delivers the terminal verdict of a submission. 502 responses are
// retried a bounded number of times; connection errors are retried
// indefinitely, because losing a terminal verdict would strand the
// submission on the frontend.
func (c *Client) Report(ctx context.Context, submissionID int64, report model.Report) error {
	url := fmt.Sprintf("%s/submission/%d/report", c.baseURL, submissionID)

	body, err := json.Marshal(report)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportFailed, "encode report failed")
	}

	badGateways := 0
	op := func() error {
		resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			logger.Warn(ctx, "report delivery failed, retrying",
				zap.Int64("submission_id", submissionID), zap.Error(err))
			return err // connection error: keep trying
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			var se *statusError
			if errors.As(err, &se) && se.status == http.StatusBadGateway {
				badGateways++
				if badGateways <= maxBadGatewayRetries {
					return err
				}
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxElapsedTime = 0 // retry until delivered or ctx is done
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return appErr.Wrapf(err, appErr.ReportFailed, "report for submission %d failed", submissionID)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, backoff.Permanent(appErr.Wrapf(err, appErr.FrontendError, "build request failed"))
	}
	req.Header.Set(authHeader, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *Client) boundedBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxBadGatewayRetries), ctx)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &statusError{status: resp.StatusCode, url: resp.Request.URL.String()}
}

// retryOn502 keeps 502 retryable and marks every other HTTP status
// permanent.
func retryOn502(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusBadGateway {
		return err
	}
	return backoff.Permanent(err)
}
