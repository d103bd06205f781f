package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	partyExpiryEvery = time.Minute
	noncePurgeEvery  = 10 * time.Minute
	jobTimeout       = 30 * time.Second
)

// StartMaintenanceScheduler runs periodic housekeeping: closing waiting parties past
// their TTL and purging expired login nonces. Callers stop it with Shutdown.
func StartMaintenanceScheduler(parties *PartyService, auth *AuthService, log *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every minute: expire stale waiting parties
	if _, err := sched.NewJob(
		gocron.DurationJob(partyExpiryEvery),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			n, err := parties.ExpireStale(ctx, time.Now())
			if err != nil {
				log.Error("[SCHED] party expiry failed", zap.Error(err))
				return
			}
			if n > 0 {
				log.Info("⏰ [SCHED] expired parties", zap.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if auth != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(noncePurgeEvery),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				defer cancel()

				n, err := auth.PurgeNonces(ctx, time.Now())
				if err != nil {
					log.Error("[SCHED] nonce purge failed", zap.Error(err))
					return
				}
				if n > 0 {
					log.Debug("[SCHED] purged nonces", zap.Int64("count", n))
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}

	sched.Start()
	log.Info("🕒 [SCHED] maintenance scheduler started")
	return sched, nil
}
