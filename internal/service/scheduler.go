package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"UD_milestone_rewards/internal/lock"
	"UD_milestone_rewards/internal/metrics"
	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/pkg/logger"

	"go.uber.org/zap"
)

type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"runOnStart"`
}

// Scheduler triggers passes on a fixed interval. At most one pass runs at a
// time, both within this process and across instances sharing the lease.
type Scheduler struct {
	runner  PassRunner
	locker  lock.Locker
	metrics *metrics.Metrics
	cfg     SchedulerConfig

	running sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewScheduler(runner PassRunner, locker lock.Locker, m *metrics.Metrics, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Scheduler{
		runner:  runner,
		locker:  locker,
		metrics: m,
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
}

// RunOnce runs a single pass unless one is already running here or elsewhere.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.MilestoneRun, error) {
	if !s.running.TryLock() {
		s.metrics.ObservePass(metrics.OutcomeSkipped, 0, time.Time{})
		return nil, ErrPassInProgress
	}
	defer s.running.Unlock()

	leaseCtx, release, err := s.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrLeaseHeld) {
			s.metrics.ObservePass(metrics.OutcomeSkipped, 0, time.Time{})
			return nil, ErrPassInProgress
		}
		return nil, err
	}
	defer release()

	// A lost lease cancels leaseCtx, which rolls the pass back.
	return s.runner.RunPass(leaseCtx)
}

// Start launches the schedule loop. A pass already underway when Stop is
// called runs to completion.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		passCtx := context.WithoutCancel(ctx)
		if s.cfg.RunOnStart {
			s.tick(passCtx)
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick(passCtx)
			}
		}
	}()

	logger.Logger().Info("milestone scheduler started", zap.Duration("interval", s.cfg.Interval))
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	logger.Logger().Info("milestone scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrPassInProgress):
		logger.Logger().Info("milestone pass skipped, another pass holds the lease")
	default:
		logger.Logger().Error("milestone pass failed", zap.Error(err))
	}
}
