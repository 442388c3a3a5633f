package workers

import (
	"context"
	"time"

	"elimu_backend/internal/logger"
	"elimu_backend/internal/services"
)

// TransactionWorker times out transactions stuck in pending, covering
// clients that never polled and callbacks that never arrived.
type TransactionWorker struct {
	payments *services.PaymentService
	interval time.Duration
	maxAge   time.Duration
}

func NewTransactionWorker(payments *services.PaymentService, interval, maxAge time.Duration) *TransactionWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	return &TransactionWorker{payments: payments, interval: interval, maxAge: maxAge}
}

func (w *TransactionWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := w.payments.RunPendingSweep(ctx, w.maxAge)
				logger.WorkerLog("transaction", "pending timeout sweep", err)
				if swept > 0 {
					logger.Info("pending sweep timed out transactions", "count", swept)
				}
			}
		}
	}()
}
