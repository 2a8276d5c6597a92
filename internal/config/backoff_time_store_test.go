package config

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestDoWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		maxRetries   int
		ctxTimeout   time.Duration
		handler      func(req *http.Request) (*http.Response, error)
		expectErr    string
		expectCalls  int32
		expectStatus int
	}{
		{
			name:       "success on first try",
			maxRetries: 3,
			handler: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
			},
			expectCalls:  1,
			expectStatus: 200,
		},
		{
			name:       "max retries exceeded",
			maxRetries: 2,
			handler: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("mock error")
			},
			expectErr:   "max retries exceeded",
			expectCalls: 3,
		},
		{
			name:       "retryable status then success",
			maxRetries: 3,
			handler: func() func(req *http.Request) (*http.Response, error) {
				n := 0
				return func(req *http.Request) (*http.Response, error) {
					n++
					if n == 1 {
						return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody}, nil
					}
					return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
				}
			}(),
			expectCalls:  2,
			expectStatus: 200,
		},
		{
			name:       "retryable status returned when retries run out",
			maxRetries: 1,
			handler: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadGateway, Body: http.NoBody}, nil
			},
			expectCalls:  2,
			expectStatus: http.StatusBadGateway,
		},
		{
			name:       "client error is not retried",
			maxRetries: 3,
			handler: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody}, nil
			},
			expectCalls:  1,
			expectStatus: http.StatusNotFound,
		},
		{
			name:       "context cancelled before success",
			maxRetries: 0,
			ctxTimeout: 50 * time.Millisecond,
			handler: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("fail")
			},
			expectErr:   "context deadline exceeded",
			expectCalls: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockRoundTripper{handler: tt.handler}
			client := &http.Client{Transport: mock}
			req, _ := http.NewRequest("GET", "http://example.com", nil)

			ctx := context.Background()
			if tt.ctxTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.ctxTimeout)
				defer cancel()
			}

			resp, err := DoWithBackoff(ctx, client, req, tt.maxRetries)

			if tt.expectErr == "" && err != nil {
				t.Fatalf("expected success, got error: %v", err)
			}
			if tt.expectErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expectErr) {
					t.Fatalf("expected error containing %q, got %v", tt.expectErr, err)
				}
			}
			if tt.expectStatus != 0 {
				if resp == nil {
					t.Fatalf("expected response, got nil")
				}
				if resp.StatusCode != tt.expectStatus {
					t.Errorf("expected status %d, got %d", tt.expectStatus, resp.StatusCode)
				}
			}

			if calls := mock.calls.Load(); tt.expectCalls >= 0 && calls != tt.expectCalls {
				t.Errorf("expected %d calls, got %d", tt.expectCalls, calls)
			}
		})
	}
}

func TestDoWithBackoffReplaysBody(t *testing.T) {
	var bodies []string
	mock := &mockRoundTripper{handler: func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			return nil, errors.New("connection reset")
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	}}
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", strings.NewReader(`{"a":1}`))

	if _, err := DoWithBackoff(context.Background(), &http.Client{Transport: mock}, req, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"a":1}` {
		t.Errorf("expected body replayed on retry, got %q", bodies)
	}
}

func TestBackoffStore(t *testing.T) {
	store := NewBackoffStore()
	now := time.Now()

	if !store.ShouldAttempt("incidents", now) {
		t.Fatal("expected attempt allowed with no recorded failure")
	}
	if _, ok := store.NextRetryAt("incidents"); ok {
		t.Fatal("expected no retry time before any failure")
	}

	store.UpdateBackoff("incidents")
	first, ok := store.NextRetryAt("incidents")
	if !ok {
		t.Fatal("expected retry time after failure")
	}
	if d := first.Sub(now); d < BASE_BACKOFF || d > BASE_BACKOFF+BASE_BACKOFF/2+time.Second {
		t.Errorf("first backoff out of range: %v", d)
	}
	if store.ShouldAttempt("incidents", now) {
		t.Error("expected attempt blocked inside backoff window")
	}
	if !store.ShouldAttempt("traffic", now) {
		t.Error("backoff must be tracked per key")
	}

	store.UpdateBackoff("incidents")
	second, _ := store.NextRetryAt("incidents")
	if !second.After(first) {
		t.Errorf("expected backoff to grow, got %v then %v", first, second)
	}

	store.ResetBackoff("incidents")
	if !store.ShouldAttempt("incidents", now) {
		t.Error("expected attempt allowed after reset")
	}
}

func TestCalculateNewBackoffDelay(t *testing.T) {
	if got := calculateNewBackoffDelay(BASE_BACKOFF); got != 2*BASE_BACKOFF {
		t.Errorf("expected doubled delay, got %v", got)
	}
	if got := calculateNewBackoffDelay(MAX_BACKOFF); got != MAX_BACKOFF {
		t.Errorf("expected delay capped at %v, got %v", MAX_BACKOFF, got)
	}
}
