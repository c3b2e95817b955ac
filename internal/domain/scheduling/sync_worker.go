package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const workerBatchSize = 20

// SyncWorker drains sync tasks the inline dispatch could not complete. One
// instance runs inside the worker process; the claim query keeps concurrent
// instances from stepping on each other.
type SyncWorker struct {
	tasks    SyncTaskRepository
	syncer   PendingSyncer
	logger   zerolog.Logger
	interval time.Duration
}

func NewSyncWorker(tasks SyncTaskRepository, syncer PendingSyncer, logger zerolog.Logger, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		tasks:    tasks,
		syncer:   syncer,
		logger:   logger.With().Str("component", "sync_worker").Logger(),
		interval: interval,
	}
}

// Run processes pending tasks on a fixed interval until the context ends.
func (w *SyncWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Msg("sync worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("sync worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("sync pass failed")
			}
		}
	}
}

// RunOnce claims one batch of pending tasks and reconciles each window.
// A task that fails stays pending with its attempt counter bumped.
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	tasks, err := w.tasks.ClaimPending(ctx, workerBatchSize)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		placed, err := w.syncer.SyncPendingAppointments(ctx, t.Window())
		if err != nil {
			w.logger.Error().Err(err).
				Int64("task_id", t.ID).
				Int("attempts", t.Attempts).
				Msg("sync task failed, will retry")
			continue
		}
		if err := w.tasks.MarkDone(ctx, t.ID); err != nil {
			w.logger.Error().Err(err).Int64("task_id", t.ID).Msg("mark sync task done failed")
			continue
		}
		if placed > 0 {
			w.logger.Info().
				Int64("task_id", t.ID).
				Int("placed", placed).
				Msg("pending appointments placed")
		}
	}
	return nil
}
