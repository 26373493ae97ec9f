package cronrunner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"bidspot/internal/services/paymentsupervisor"
	"bidspot/internal/services/winnerresolver"
	"bidspot/internal/store"
)

const resolveBatchSize = 100

// ResolveDueAuctions returns the job that closes every ended, unprocessed
// auction. Lock conflicts from overlapping ticks are expected no-ops.
func ResolveDueAuctions(st store.Store, resolver winnerresolver.IWinnerResolver) func(context.Context) {
	return func(ctx context.Context) {
		ids, err := st.ListEndedUnprocessed(ctx, time.Now().UTC(), resolveBatchSize)
		if err != nil {
			zap.L().Error("cron.list_ended", zap.Error(err))
			return
		}
		for _, id := range ids {
			res, err := resolver.ResolveAuction(ctx, id)
			if err != nil {
				if errors.Is(err, winnerresolver.ErrAlreadyProcessing) ||
					errors.Is(err, winnerresolver.ErrNothingToProcess) {
					continue
				}
				zap.L().Error("cron.resolve", zap.String("auction_id", id), zap.Error(err))
				continue
			}
			zap.L().Info("cron.resolved",
				zap.String("auction_id", id),
				zap.Int("winners", len(res.Winners)))
		}
	}
}

// SweepMissedPayments returns the deadline-sweep job.
func SweepMissedPayments(sup paymentsupervisor.IPaymentSupervisor) func(context.Context) {
	return func(ctx context.Context) {
		results, err := sup.SweepMissedPayments(ctx)
		if err != nil {
			zap.L().Error("cron.sweep", zap.Error(err))
			return
		}
		if len(results) > 0 {
			zap.L().Info("cron.swept", zap.Int("demotions", len(results)))
		}
	}
}
