package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// CachedPromHandler serves a /metrics exposition that is rendered at most
// once per ttl. Scrapes between refreshes get the cached bytes, so a burst
// of scrapers (or a dashboard polling /metrics) costs one gather per ttl.
type CachedPromHandler struct {
	h   http.Handler
	ttl time.Duration

	mu    sync.RWMutex
	cache []byte
}

// NewCachedPromHandler renders the exposition once and then refreshes it
// every ttl until ctx is done.
func NewCachedPromHandler(ctx context.Context, gatherer prometheus.Gatherer, ttl time.Duration) *CachedPromHandler {
	c := &CachedPromHandler{
		h:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ttl: ttl,
	}
	c.Refresh()

	go c.refreshLoop(ctx)
	return c
}

func (c *CachedPromHandler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// Refresh re-gathers the metrics. A failed gather keeps the previous cache.
func (c *CachedPromHandler) Refresh() {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		return
	}

	body := bytes.Clone(rec.Body.Bytes())
	c.mu.Lock()
	c.cache = body
	c.mu.Unlock()
}

func (c *CachedPromHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()

	if len(cached) == 0 {
		c.h.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_, _ = w.Write(cached)
}
