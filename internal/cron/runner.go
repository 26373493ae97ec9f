// Package cronrunner schedules the two background entry points of the core:
// resolving ended auctions and sweeping missed payment deadlines. Both jobs
// are idempotent, so overlapping or missed ticks are harmless.
package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func New(baseCtx context.Context) *Runner {
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	zap.L().Info("cron started")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	zap.L().Info("cron stopped")
}
