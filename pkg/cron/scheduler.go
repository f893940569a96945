// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
)

// jobTimeout bounds a single reclassification run.
const jobTimeout = 30 * time.Minute

// Reclassifier is implemented by *categorization.Service.
type Reclassifier interface {
	Reclassify(ctx context.Context, txs categorization.TransactionStore, limit int) (*categorization.ReclassifyResult, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron         *cron.Cron
	reclassifier Reclassifier
	txs          categorization.TransactionStore
	schedule     string
	limit        int
	running      atomic.Bool
	logger       *slog.Logger
}

// NewScheduler creates a scheduler that reclassifies up to limit sentinel withdrawals
// on schedule (standard 5-field format).
func NewScheduler(reclassifier Reclassifier, txs categorization.TransactionStore, schedule string, limit int, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:         c,
		reclassifier: reclassifier,
		txs:          txs,
		schedule:     schedule,
		limit:        limit,
		logger:       logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.reclassify); err != nil {
		return fmt.Errorf("invalid reclassify schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("reclassify_schedule", s.schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a reclassification run outside the schedule.
func (s *Scheduler) RunNow() {
	go s.reclassify()
}

// reclassify runs one job. Overlapping runs are skipped.
func (s *Scheduler) reclassify() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("reclassification still running, skipping")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.logger.Info("starting scheduled reclassification", slog.Int("limit", s.limit))

	res, err := s.reclassifier.Reclassify(ctx, s.txs, s.limit)
	if err != nil {
		s.logger.Error("scheduled reclassification failed", slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled reclassification completed",
		slog.Int("processed", res.Processed),
		slog.Int("categorized", res.Categorized),
	)
}
