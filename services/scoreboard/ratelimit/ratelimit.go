// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements the per-client submission rate limiter.
//
// One bucket per client key counts attempts inside a rolling window
// anchored at the first attempt. The limiter is a soft abuse guard,
// not a security boundary: state lives in process memory and is lost
// on restart, and callers fail open when the limiter itself misbehaves
// (availability over strict quota enforcement).
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultLimit is the default number of allowed attempts per window.
const DefaultLimit = 120

// DefaultWindow is the default window length.
const DefaultWindow = time.Hour

// Limiter decides whether a client may submit right now.
//
// Implementations must be safe for concurrent use. A non-nil error
// means the limiter itself failed; callers treat that as "allow" and
// log the anomaly.
type Limiter interface {
	Allow(clientKey string) (bool, error)
}

// bucket tracks one client's attempts in the current window.
type bucket struct {
	windowStart time.Time
	count       int
}

// FixedWindow is the in-memory fixed-window Limiter.
//
// The window is anchored at the client's first attempt and resets once
// the window length has fully elapsed. Elapsed time is measured with
// Go's monotonic clock reading, so wall-clock adjustments don't skew
// the window.
//
// # Thread Safety
//
// Safe for concurrent use. The check-then-increment for one key runs
// under the mutex, so concurrent attempts from the same client can
// never both consume the last slot.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option customizes a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces the clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// NewFixedWindow creates a limiter allowing limit attempts per window.
// Non-positive inputs fall back to the defaults.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) *FixedWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &FixedWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured attempts-per-window limit.
func (l *FixedWindow) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *FixedWindow) Window() time.Duration { return l.window }

// Allow records an attempt for the client key and reports whether it
// is within quota. A denied attempt does not mutate the bucket.
func (l *FixedWindow) Allow(clientKey string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientKey]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[clientKey] = b
	}
	if now.Sub(b.windowStart) > l.window {
		b.windowStart = now
		b.count = 0
	}
	if b.count < l.limit {
		b.count++
		return true, nil
	}
	return false, nil
}

// Len returns the number of tracked buckets.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep evicts buckets whose window expired at least one full window
// ago. Returns how many buckets were removed.
//
// Idle clients would otherwise accumulate for the process lifetime;
// the sweep bounds that growth without ever evicting a bucket that
// could still deny a request.
func (l *FixedWindow) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > 2*l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Sweeper periodically evicts stale buckets from a FixedWindow.
type Sweeper struct {
	limiter  *FixedWindow
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. A non-positive interval defaults to
// the limiter's window length.
func NewSweeper(limiter *FixedWindow, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = limiter.Window()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		limiter:  limiter,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.With(slog.String("component", "ratelimit_sweeper")),
	}
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts sweeping and waits for the goroutine to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if removed := s.limiter.Sweep(); removed > 0 {
				s.logger.Debug("swept stale rate limit buckets", slog.Int("removed", removed))
			}
		}
	}
}
