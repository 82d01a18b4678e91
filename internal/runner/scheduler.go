// Package runner — планировщик ежедневного прогона подписок и списаний
// по рассрочкам.
package runner

import (
	"context"
	"time"

	"boxshop/internal/service"

	"go.uber.org/zap"
)

type Scheduler struct {
	boxrun       *service.BoxRunService
	installments *service.InstallmentService
	interval     time.Duration
	log          *zap.Logger
	stopCh       chan struct{}
}

func NewScheduler(boxrun *service.BoxRunService, installments *service.InstallmentService, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		boxrun:       boxrun,
		installments: installments,
		interval:     interval,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Start запускает планировщик задач
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting box run scheduler", zap.Duration("interval", s.interval))

	go s.runBoxes(ctx)
	go s.runInstallments(ctx)
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	s.log.Info("stopping box run scheduler")
	close(s.stopCh)
}

func (s *Scheduler) runBoxes(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Выполняем сразу при старте
	if err := s.boxrun.Run(ctx); err != nil {
		s.log.Error("initial box run failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := s.boxrun.Run(ctx); err != nil {
				s.log.Error("box run failed", zap.Error(err))
			}
		case <-s.stopCh:
			s.log.Info("box run stopped")
			return
		case <-ctx.Done():
			s.log.Info("box run cancelled")
			return
		}
	}
}

func (s *Scheduler) runInstallments(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.installments.ChargeDue(ctx); err != nil {
		s.log.Error("initial installment run failed", zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := s.installments.ChargeDue(ctx); err != nil {
				s.log.Error("installment run failed", zap.Error(err))
			}
		case <-s.stopCh:
			s.log.Info("installment run stopped")
			return
		case <-ctx.Done():
			s.log.Info("installment run cancelled")
			return
		}
	}
}
