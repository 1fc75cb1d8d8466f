package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Scheduler drains the queue on a cron schedule. Draining otherwise
// happens on demand (the drain command or the admin endpoint); the
// schedule is optional and off when the expression is empty.
type Scheduler struct {
	queue *Queue
	expr  string
	batch int
}

// NewScheduler validates the cron expression up front. An empty expression
// returns a nil scheduler and no error.
func NewScheduler(queue *Queue, expr string, batch int) (*Scheduler, error) {
	if expr == "" {
		return nil, nil
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid drain schedule %q", expr)
	}
	if batch <= 0 {
		batch = 20
	}
	return &Scheduler{queue: queue, expr: expr, batch: batch}, nil
}

// Run blocks until ctx is done, draining at each cron tick. Drain errors
// are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("notification drain scheduled", "schedule", s.expr, "batch", s.batch)
	for {
		next, err := gronx.NextTick(s.expr, false)
		if err != nil {
			slog.Error("cron next tick failed", "schedule", s.expr, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		res, err := s.queue.Drain(ctx, s.batch)
		if err != nil {
			slog.Error("scheduled drain failed", "error", err)
			continue
		}
		if res.Sent > 0 || res.Failed > 0 {
			slog.Info("scheduled drain complete", "sent", res.Sent, "failed", res.Failed)
		}
	}
}
