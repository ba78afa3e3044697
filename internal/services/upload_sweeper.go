package services

import (
	"context"
	"errors"
	"time"
)

// SweepRecorder observes how many uploads each sweep removed.
type SweepRecorder interface {
	UploadsSwept(n int)
}

// UploadSweeperDeps bundles collaborators for the periodic temp upload cleanup.
type UploadSweeperDeps struct {
	Attachments AttachmentService
	Interval    time.Duration
	MaxAge      time.Duration
	Recorder    SweepRecorder
	Logger      Logger
	// Ticker is overridden in tests.
	Ticker func(d time.Duration) (<-chan time.Time, func())
}

// UploadSweeper deletes abandoned uploads on a fixed interval.
type UploadSweeper struct {
	attachments AttachmentService
	interval    time.Duration
	maxAge      time.Duration
	recorder    SweepRecorder
	logger      Logger
	ticker      func(d time.Duration) (<-chan time.Time, func())
}

// NewUploadSweeper validates deps and applies the one hour defaults.
func NewUploadSweeper(deps UploadSweeperDeps) (*UploadSweeper, error) {
	if deps.Attachments == nil {
		return nil, errors.New("upload sweeper: attachment service is required")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := deps.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultUploadTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	ticker := deps.Ticker
	if ticker == nil {
		ticker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	return &UploadSweeper{
		attachments: deps.Attachments,
		interval:    interval,
		maxAge:      maxAge,
		recorder:    deps.Recorder,
		logger:      logger,
		ticker:      ticker,
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *UploadSweeper) Run(ctx context.Context) {
	ticks, stop := s.ticker(s.interval)
	defer stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass and reports the number of deleted uploads.
func (s *UploadSweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.attachments.SweepStaleUploads(ctx, s.maxAge)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger(ctx, "uploads.sweep_failed", map[string]any{"error": err, "removed": removed})
	}
	if s.recorder != nil && removed > 0 {
		s.recorder.UploadsSwept(removed)
	}
	return removed
}
