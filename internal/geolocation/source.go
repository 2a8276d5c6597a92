// Package geolocation tracks the device position pushed by the dashboard and
// hands it to watchers and one-shot readers.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trafficview.org/internal/geo"
	"trafficview.org/internal/metrics"
	"trafficview.org/internal/models"
)

type ErrorCode string

const (
	PermissionDenied    ErrorCode = "permission_denied"
	PositionUnavailable ErrorCode = "position_unavailable"
	Timeout             ErrorCode = "timeout"
)

func (c ErrorCode) Valid() bool {
	switch c {
	case PermissionDenied, PositionUnavailable, Timeout:
		return true
	}
	return false
}

// Error is a device, permission or timeout failure. It never ends a watch.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("geolocation %s: %s", e.Code, e.Message)
}

var (
	ErrInvalidPosition = errors.New("position outside valid coordinate range")
	ErrLowAccuracy     = errors.New("position accuracy below configured threshold")
)

// Position is one device fix.
type Position struct {
	Coordinate     models.Coordinate `json:"coordinate"`
	AccuracyMeters float64           `json:"accuracy_m,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

type Options struct {
	// MaximumAge is how old a cached fix may be and still satisfy Read.
	MaximumAge time.Duration
	// Timeout bounds how long Read waits for a fresh fix.
	Timeout time.Duration
	// HighAccuracy drops fixes whose accuracy is worse than MinAccuracyMeters.
	// It is off by default so coarse fixes are still shown.
	HighAccuracy      bool
	MinAccuracyMeters float64
}

func DefaultOptions() Options {
	return Options{
		MaximumAge:        5 * time.Second,
		Timeout:           10 * time.Second,
		MinAccuracyMeters: 100,
	}
}

type readResult struct {
	pos Position
	err error
}

// Source is the single owner of the current device position.
type Source struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	last    Position
	lastSeq uint64
	hasLast bool
	subs    map[uint64]*Subscription
	nextID  uint64
	waiters map[chan readResult]struct{}
	closed  bool
}

func NewSource(opts Options, logger *slog.Logger) *Source {
	return &Source{
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		subs:    make(map[uint64]*Subscription),
		waiters: make(map[chan readResult]struct{}),
	}
}

// Subscription is the handle returned by Watch.
type Subscription struct {
	id        uint64
	src       *Source
	onUpdate  func(Position)
	onError   func(*Error)
	cancelled atomic.Bool

	// deliverMu orders position callbacks; delivered is the sequence of
	// the newest fix handed to onUpdate.
	deliverMu sync.Mutex
	delivered uint64
}

// deliver hands p to onUpdate unless a newer fix already went out.
// Callbacks must not call Update on the same source.
func (s *Subscription) deliver(seq uint64, p Position) {
	if s.onUpdate == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if seq <= s.delivered || s.cancelled.Load() {
		return
	}
	s.delivered = seq
	s.onUpdate(p)
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.src.mu.Lock()
	delete(s.src.subs, s.id)
	s.src.mu.Unlock()
}

// Watch delivers every accepted position to onUpdate and every failure to
// onError until the subscription is cancelled or the source is closed.
// Either callback may be nil. When a position is already known it is
// delivered immediately, unless a newer fix reaches the watcher first.
func (s *Source) Watch(onUpdate func(Position), onError func(*Error)) *Subscription {
	sub := &Subscription{src: s, onUpdate: onUpdate, onError: onError}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.cancelled.Store(true)
		return sub
	}
	s.nextID++
	sub.id = s.nextID
	s.subs[sub.id] = sub
	last, seq, has := s.last, s.lastSeq, s.hasLast
	s.mu.Unlock()

	if has {
		sub.deliver(seq, last)
	}
	return sub
}

// Current returns the last accepted position regardless of its age.
func (s *Source) Current() (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Read returns a position no older than MaximumAge, waiting up to Timeout
// for a new fix. A timeout yields an *Error with code Timeout.
func (s *Source) Read(ctx context.Context) (Position, error) {
	ch := make(chan readResult, 1)

	s.mu.Lock()
	if s.hasLast && s.now().Sub(s.last.Timestamp) <= s.opts.MaximumAge {
		p := s.last
		s.mu.Unlock()
		return p, nil
	}
	if s.closed {
		s.mu.Unlock()
		return Position{}, &Error{Code: PositionUnavailable, Message: "position source closed"}
	}
	s.waiters[ch] = struct{}{}
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-timer.C:
		s.dropWaiter(ch)
		return Position{}, &Error{Code: Timeout, Message: fmt.Sprintf("no position fix within %s", s.opts.Timeout)}
	case <-ctx.Done():
		s.dropWaiter(ch)
		return Position{}, ctx.Err()
	}
}

// ReadOnce is the callback form of Read. Exactly one callback runs, on its
// own goroutine.
func (s *Source) ReadOnce(ctx context.Context, onSuccess func(Position), onError func(error)) {
	go func() {
		p, err := s.Read(ctx)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(p)
		}
	}()
}

func (s *Source) dropWaiter(ch chan readResult) {
	s.mu.Lock()
	delete(s.waiters, ch)
	s.mu.Unlock()
}

// Update publishes a new fix. A zero timestamp is replaced with the current time.
func (s *Source) Update(p Position) error {
	if !geo.IsValidLatLon(p.Coordinate.Lat, p.Coordinate.Lng) {
		return fmt.Errorf("%w: %s", ErrInvalidPosition, p.Coordinate)
	}
	if s.opts.HighAccuracy && s.opts.MinAccuracyMeters > 0 && p.AccuracyMeters > s.opts.MinAccuracyMeters {
		s.logger.Debug("dropping low-accuracy position", "accuracy_m", p.AccuracyMeters)
		return fmt.Errorf("%w: %.0fm > %.0fm", ErrLowAccuracy, p.AccuracyMeters, s.opts.MinAccuracyMeters)
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.lastSeq++
	s.last, s.hasLast = p, true
	seq := s.lastSeq
	subs := s.snapshotLocked()
	s.releaseWaitersLocked(readResult{pos: p})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(seq, p)
	}
	return nil
}

// Fail publishes a failure to every watcher and to pending readers. The
// last known position is kept.
func (s *Source) Fail(code ErrorCode, message string) {
	gerr := &Error{Code: code, Message: message}
	metrics.GeolocationErrors.WithLabelValues(string(code)).Inc()
	s.logger.Warn("geolocation failure", "code", code, "message", message)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	subs := s.snapshotLocked()
	s.releaseWaitersLocked(readResult{err: gerr})
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.onError != nil && !sub.cancelled.Load() {
			sub.onError(gerr)
		}
	}
}

// Close cancels every subscription and fails pending readers.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.snapshotLocked()
	s.releaseWaitersLocked(readResult{err: &Error{Code: PositionUnavailable, Message: "position source closed"}})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *Source) snapshotLocked() []*Subscription {
	out := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *Source) releaseWaitersLocked(r readResult) {
	for ch := range s.waiters {
		ch <- r
		delete(s.waiters, ch)
	}
}
