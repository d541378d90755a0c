// Package worker runs the asynchronous half of the billing pipeline: it
// consumes post-commit events off the bus and feeds them to the notification
// dispatcher, and runs the periodic overdue sweep.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/events"
	"github.com/dukerupert/tally/internal/service"
)

// Config holds worker configuration.
type Config struct {
	// SweepInterval is how often the overdue sweep runs.
	SweepInterval time.Duration

	// DispatchTimeout bounds a single notification dispatch.
	DispatchTimeout time.Duration
}

// Worker consumes billing events and runs the overdue sweep.
type Worker struct {
	config     Config
	bus        events.Bus
	dispatcher *service.Dispatcher
	records    domain.RecordService
	logger     *slog.Logger
}

// NewWorker creates a worker over the given event bus.
func NewWorker(
	bus events.Bus,
	dispatcher *service.Dispatcher,
	records domain.RecordService,
	config Config,
	logger *slog.Logger,
) *Worker {
	if config.SweepInterval == 0 {
		config.SweepInterval = 1 * time.Hour
	}
	if config.DispatchTimeout == 0 {
		config.DispatchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config:     config,
		bus:        bus,
		dispatcher: dispatcher,
		records:    records,
		logger:     logger,
	}
}

// Start subscribes to the event subjects and runs the sweep loop until the
// context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"sweep_interval", w.config.SweepInterval,
		"dispatch_timeout", w.config.DispatchTimeout,
	)

	if err := w.bus.Subscribe(events.SubjectRecordCreated, w.handleRecordCreated); err != nil {
		return err
	}
	if err := w.bus.Subscribe(events.SubjectAccountLate, w.handleAccountLate); err != nil {
		return err
	}

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

// RunSweepOnce runs a single overdue sweep immediately. Exposed for startup
// catch-up and operational tooling.
func (w *Worker) RunSweepOnce(ctx context.Context) (int, error) {
	return w.records.MarkRecordsOverdue(ctx)
}

func (w *Worker) runSweep(ctx context.Context) {
	start := time.Now()
	n, err := w.records.MarkRecordsOverdue(ctx)
	if err != nil {
		w.logger.Error("overdue sweep failed", "error", err)
		return
	}
	w.logger.Info("overdue sweep complete", "transitioned", n, "duration", time.Since(start))
}

func (w *Worker) handleRecordCreated(_ context.Context, subject string, data []byte) {
	var ev events.RecordCreated
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Error("failed to decode event", "subject", subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.DispatchTimeout)
	defer cancel()
	w.dispatcher.DispatchRecordCreated(ctx, ev)
}

func (w *Worker) handleAccountLate(_ context.Context, subject string, data []byte) {
	var ev events.AccountLate
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.Error("failed to decode event", "subject", subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.DispatchTimeout)
	defer cancel()
	w.dispatcher.DispatchAccountLate(ctx, ev)
}
