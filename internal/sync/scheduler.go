// internal/sync/scheduler.go
package sync

import (
	"context"
	"errors"
	"log"
	"time"

	"datasync-service/internal/syncerr"
)

// StartScheduler syncs every account that has a source on each tick until
// ctx is cancelled. A non-positive interval disables it.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Println("⏸️ [SCHEDULER] Background sync disabled (SYNC_INTERVAL not set)")
		return
	}
	log.Printf("⏰ [SCHEDULER] Background sync every %v", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 [SCHEDULER] Stopped")
			return
		case <-ticker.C:
			s.RunScheduledSyncs(ctx)
		}
	}
}

// RunScheduledSyncs performs one scheduler pass and returns how many syncs succeeded.
func (s *Service) RunScheduledSyncs(ctx context.Context) int {
	accounts, err := s.store.ListSyncableAccounts(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Could not list accounts: %v", err)
		return 0
	}

	ok := 0
	for _, accountID := range accounts {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Sync(ctx, accountID); err != nil {
			if errors.Is(err, syncerr.ErrSyncInProgress) {
				log.Printf("⏭️ [SCHEDULER] Account %s already syncing, skipped", accountID)
				continue
			}
			log.Printf("⚠️ [SCHEDULER] Account %s sync failed: %v", accountID, err)
			continue
		}
		ok++
	}
	log.Printf("✅ [SCHEDULER] Pass done: %d/%d accounts synced", ok, len(accounts))
	return ok
}
