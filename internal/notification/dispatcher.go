// Package notification implements C9: at-least-once delivery of
// downstream notifications for settlements whose release is authorised,
// with bounded exponential-backoff retry.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
)

const (
	maxRetries   = 10
	capBackoff   = 30 * time.Minute
	pollInterval = 5 * time.Second
	batchSize    = 50
	claimTTL     = pollInterval * 3
)

// DedupHint claims an entry for delivery across replicas, so two
// instances polling the same notification_queue row don't both call the
// downstream endpoint. Optional: a Dispatcher with no hint set just
// delivers every due entry it fetches.
type DedupHint interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
}

// Store is the subset of persistence the dispatcher needs to drive the
// notification queue.
type Store interface {
	DueNotifications(ctx context.Context, limit int) ([]domain.NotificationQueueEntry, error)
	DeleteNotification(ctx context.Context, id int64) error
	RescheduleNotification(ctx context.Context, id int64, retryCount int, nextAttempt time.Time) error
	MoveNotificationToFailure(ctx context.Context, entry domain.NotificationQueueEntry) error
}

// Dispatcher is C9: the Notification Dispatcher. It polls the
// notification_queue table on an interval and delivers due entries,
// rescheduling with exponential backoff on failure and moving exhausted
// entries to notification_failure (§4.9).
type Dispatcher struct {
	store       Store
	notifier    Notifier
	dedup       DedupHint
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	baseBackoff time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher builds a Dispatcher. baseBackoff is the initial retry
// delay used by retryBackoff (§4.9); a non-positive value falls back to
// 30 seconds.
func NewDispatcher(st Store, notifier Notifier, m *metrics.Metrics, logger zerolog.Logger, baseBackoff time.Duration) *Dispatcher {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	return &Dispatcher{
		store:       st,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With().Str("component", "notification_dispatcher").Logger(),
		baseBackoff: baseBackoff,
	}
}

// SetDedupHint attaches a cross-replica delivery claim. Optional.
func (d *Dispatcher) SetDedupHint(h DedupHint) {
	d.dedup = h
}

// Start launches the background polling loop, polling immediately and
// then on every tick.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	ticker := time.NewTicker(pollInterval)
	go func() {
		defer close(d.done)
		defer ticker.Stop()
		d.drain(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.drain(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for the in-flight batch to
// finish.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

func (d *Dispatcher) drain(ctx context.Context) {
	due, err := d.store.DueNotifications(ctx, batchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("fetching due notifications")
		return
	}
	for _, entry := range due {
		d.deliver(ctx, entry)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, entry domain.NotificationQueueEntry) {
	if d.dedup != nil {
		claimed, err := d.dedup.SetNX(ctx, fmt.Sprintf("notif-claim:%d", entry.ID), "1", claimTTL)
		if err != nil {
			d.logger.Warn().Err(err).Int64("id", entry.ID).Msg("dedup claim check failed, delivering anyway")
		} else if !claimed {
			return
		}
	}

	err := d.notifier.Notify(ctx, entry.SettlementID, entry.Version, entry.Status, entry.Details)
	if err == nil {
		if delErr := d.store.DeleteNotification(ctx, entry.ID); delErr != nil {
			d.logger.Error().Err(delErr).Int64("id", entry.ID).Msg("removing delivered notification")
		}
		d.metrics.NotificationDelivered.Inc()
		return
	}

	entry.RetryCount++
	if entry.RetryCount >= maxRetries {
		d.logger.Error().Err(err).Str("settlement_id", entry.SettlementID).Msg("exhausted notification retries, moving to failure table")
		if moveErr := d.store.MoveNotificationToFailure(ctx, entry); moveErr != nil {
			d.logger.Error().Err(moveErr).Int64("id", entry.ID).Msg("recording notification failure")
		}
		d.metrics.NotificationFailed.Inc()
		return
	}

	next := time.Now().Add(d.retryBackoff(entry.RetryCount))
	if rescheduleErr := d.store.RescheduleNotification(ctx, entry.ID, entry.RetryCount, next); rescheduleErr != nil {
		d.logger.Error().Err(rescheduleErr).Int64("id", entry.ID).Msg("rescheduling notification")
	}
	d.metrics.NotificationRetries.Inc()
}

func (d *Dispatcher) retryBackoff(attempt int) time.Duration {
	backoff := d.baseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > capBackoff {
			return capBackoff
		}
	}
	return backoff
}
