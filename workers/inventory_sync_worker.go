package workers

import (
	"context"
	"time"

	"gatecrawl-backend/services"

	"go.uber.org/zap"
)

const syncBatchSize = 25

// InventorySyncWorker periodically reconciles inventories whose items have not been
// checked against the chain within one interval.
type InventorySyncWorker struct {
	inventory *services.InventoryService
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewInventorySyncWorker(inventory *services.InventoryService, interval time.Duration, log *zap.Logger) *InventorySyncWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &InventorySyncWorker{inventory: inventory, interval: interval, log: log, now: time.Now}
}

func (w *InventorySyncWorker) Start(ctx context.Context) {
	w.log.Info("🔁 [INVENTORY_SYNC] worker starting", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *InventorySyncWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("⏹️ [INVENTORY_SYNC] worker stopped")
			return
		case <-ticker.C:
			if _, err := w.syncOnce(ctx); err != nil {
				w.log.Error("❌ [INVENTORY_SYNC] pass failed", zap.Error(err))
			}
		}
	}
}

// syncOnce syncs one batch of stale wallets and returns how many were processed.
func (w *InventorySyncWorker) syncOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.interval)
	wallets, err := w.inventory.StaleWallets(ctx, cutoff, syncBatchSize)
	if err != nil {
		return 0, err
	}
	if len(wallets) == 0 {
		return 0, nil
	}

	done := 0
	for _, wallet := range wallets {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.inventory.Sync(ctx, wallet); err != nil {
			// Do not abort the batch; the wallet stays stale and is retried next tick
			w.log.Warn("[INVENTORY_SYNC] wallet sync failed", zap.String("wallet", wallet), zap.Error(err))
			continue
		}
		done++
	}
	w.log.Info("✅ [INVENTORY_SYNC] pass complete", zap.Int("wallets", done), zap.Int("stale", len(wallets)))
	return done, nil
}
