package notify

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/aethermarket/coordinator/internal/logging"
)

// Sweeper runs the SLA checker on a cron cadence as a system.Service.
type Sweeper struct {
	checker           *SLAChecker
	cronExpr          string
	operatorRecipient string
	log               *logging.Logger
	cron              *cron.Cron
}

func NewSweeper(checker *SLAChecker, cronExpr, operatorRecipient string, log *logging.Logger) *Sweeper {
	return &Sweeper{checker: checker, cronExpr: cronExpr, operatorRecipient: operatorRecipient, log: log}
}

func (s *Sweeper) Name() string { return "notify-sla-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cronExpr, func() { s.checker.Sweep(ctx, s.operatorRecipient) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("notify SLA sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
