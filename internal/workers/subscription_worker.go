package workers

import (
	"context"
	"time"

	"elimu_backend/internal/logger"
	"elimu_backend/internal/services"
)

// SubscriptionWorker periodically expires lapsed accounts, cascading school
// groups when the lapsed account is a group admin.
type SubscriptionWorker struct {
	subscriptions *services.SubscriptionService
	interval      time.Duration
}

func NewSubscriptionWorker(subscriptions *services.SubscriptionService, interval time.Duration) *SubscriptionWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SubscriptionWorker{subscriptions: subscriptions, interval: interval}
}

func (w *SubscriptionWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := w.subscriptions.RunExpirySweep(ctx)
				logger.WorkerLog("subscription", "expiry sweep", err)
				if expired > 0 {
					logger.Info("expiry sweep downgraded accounts", "count", expired)
				}
			}
		}
	}()
}
