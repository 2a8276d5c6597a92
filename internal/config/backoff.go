package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// retryableStatus lists responses that are worth repeating for idempotent requests.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoWithBackoff sends req, retrying transport failures and retryable status
// codes with jittered exponential backoff. maxRetries <= 0 keeps retrying
// until ctx is done. When retries run out on a retryable status, the last
// response is returned without error so the caller can inspect it.
//
// Only use it for idempotent requests. A request body is replayed through
// req.GetBody.
func DoWithBackoff(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	delay := retryBaseDelay
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return nil, err
		}

		attemptReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil && attempt > 0 {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to replay request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		exhausted := maxRetries > 0 && attempt >= maxRetries

		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
			}
			lastErr = err
			if exhausted {
				return nil, fmt.Errorf("max retries exceeded after %d attempts: %w", attempt+1, err)
			}
		case retryableStatus(resp.StatusCode) && !exhausted:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
		default:
			return resp, nil
		}

		jitter := time.Duration(rand.Float64() * float64(delay) * JITTER_FACTOR)
		timer := time.NewTimer(delay + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}
