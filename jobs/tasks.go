// Package jobs contains the background worker built on Asynq: the periodic
// exchange-rate cache warmup and the queue plumbing around it.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRatesWarmup refreshes the exchange-rate cache so submissions
	// rarely hit the upstream API synchronously.
	TaskTypeRatesWarmup = "fx:rates_warmup"
)

// RatesWarmupPayload names the base currencies and targets to prefetch.
type RatesWarmupPayload struct {
	Bases   []string `json:"bases"`
	Targets []string `json:"targets"`
}

// NewRatesWarmupTask constructs an Asynq task.
func NewRatesWarmupTask(payload RatesWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRatesWarmup, data), nil
}

// RateWarmer prefetches rates into the cache. Satisfied by
// fx.CachedProvider.
type RateWarmer interface {
	Warm(ctx context.Context, bases, targets []string) error
}

// NewRatesWarmupHandler builds the Asynq handler for rate warmups.
func NewRatesWarmupHandler(warmer RateWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RatesWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		start := time.Now()
		if err := warmer.Warm(ctx, payload.Bases, payload.Targets); err != nil {
			logger.Warn("rates warmup failed", slog.Any("error", err))
			return err
		}
		logger.Info("rates warmup complete",
			slog.Int("bases", len(payload.Bases)),
			slog.Duration("took", time.Since(start)))
		return nil
	}
}
