package services

import (
	"context"
	"time"

	"namlend/internal/adapters/rpc"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultOverdueSpec runs the overdue scan daily at 01:00
const DefaultOverdueSpec = "0 1 * * *"

// CronService runs the ledger's scheduled jobs
type CronService struct {
	cron     *cron.Cron
	schedule *ScheduleService
	timeout  time.Duration
	log      *zap.Logger
}

// NewCronService registers the overdue scan on spec
func NewCronService(schedule *ScheduleService, spec string, log *zap.Logger) (*CronService, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if spec == "" {
		spec = DefaultOverdueSpec
	}
	s := &CronService{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		timeout:  time.Minute,
		log:      log.Named("cron"),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.MarkOverdue(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the scheduler
func (s *CronService) Start() {
	s.cron.Start()
	s.log.Info("🚀 cron started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs or until ctx is done
func (s *CronService) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("🛑 cron stopped")
}

// MarkOverdue runs one overdue scan as the system actor
func (s *CronService) MarkOverdue(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.schedule.MarkOverdue(ctx, System)
	switch {
	case err != nil:
		s.log.Error("overdue scan failed", zap.String("tag", rpc.TagOf(err)), zap.Error(err))
	case !res.Success:
		s.log.Error("overdue scan rejected", zap.String("code", res.Code), zap.String("error", res.Error))
	default:
		s.log.Info("overdue scan finished",
			zap.Int("marked", res.Data.MarkedCount),
			zap.Time("checked_at", res.Data.CheckedAt))
	}
}
