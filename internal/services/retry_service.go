// Package services – RetryService
//
// Periodic sweeper over the notification outbox. Each pass first expires
// PENDING and FAILED records past their TTL, then re-delivers the oldest
// FAILED records still under the retry bound, up to the configured batch
// limit. Records that exhaust their retries stay FAILED and simply stop
// matching the sweep query.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/ordwell/go-fulfillment-backend/internal/config"
	"github.com/ordwell/go-fulfillment-backend/internal/metrics"
	"github.com/ordwell/go-fulfillment-backend/internal/repo"
)

// RetrySummary reports one sweeper pass.
type RetrySummary struct {
	// Expired counts records moved to EXPIRED before retrying.
	Expired int64
	// Processed counts records picked up for re-delivery.
	Processed int
	// Succeeded counts records whose re-delivery reached at least one endpoint.
	Succeeded int
	// Failed counts records that failed again and remain in the outbox.
	Failed int
}

// RetryService re-delivers failed notifications.
type RetryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cfg supplies the retry bound and batch limit.
	Cfg config.Config
	// Notifier performs the actual re-delivery.
	Notifier *NotificationService
}

// NewRetryService constructs a RetryService.
func NewRetryService(db *gorm.DB, cfg config.Config, notifier *NotificationService) *RetryService {
	return &RetryService{DB: db, Cfg: cfg, Notifier: notifier}
}

// Sweep runs one pass: expire overdue records, then re-deliver retryable
// ones. Individual re-delivery failures are counted, not propagated; only
// infrastructure errors abort the pass.
func (s *RetryService) Sweep(ctx context.Context) (RetrySummary, error) {
	tr := otel.Tracer("services/RetryService")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	metrics.RetrySweep()
	now := time.Now().UTC()

	var sum RetrySummary
	expired, err := repo.MarkExpiredNotifications(ctx, s.DB, now)
	if err != nil {
		return sum, err
	}
	sum.Expired = expired

	records, err := repo.ListRetryable(ctx, s.DB, s.Cfg.MaxRetries, s.Cfg.RetryBatchLimit, now)
	if err != nil {
		return sum, err
	}

	for i := range records {
		rec := &records[i]
		sum.Processed++
		_, err := s.Notifier.redeliver(ctx, rec)
		switch {
		case err == nil || errors.Is(err, ErrPartialDelivery):
			sum.Succeeded++
			metrics.RetryOutcome("succeeded")
		default:
			sum.Failed++
			metrics.RetryOutcome("failed")
			log.Debug().Err(err).
				Str("record", rec.ID).
				Int("retry", rec.RetryCount).
				Msg("notification re-delivery failed")
		}
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.processed", sum.Processed),
		attribute.Int("sweep.succeeded", sum.Succeeded),
	)
	return sum, nil
}

// Run sweeps on the given interval until the context is cancelled. Intended
// to be started once from the process entry point.
func (s *RetryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := s.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("notification retry sweep aborted")
				continue
			}
			if sum.Processed > 0 || sum.Expired > 0 {
				log.Info().
					Int64("expired", sum.Expired).
					Int("processed", sum.Processed).
					Int("succeeded", sum.Succeeded).
					Int("failed", sum.Failed).
					Msg("notification retry sweep")
			}
		}
	}
}
