package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"price_tracker/config"
)

const sweepInterval = 10 * time.Minute

// Triggerable allows workers to be kicked outside their normal cadence.
type Triggerable interface {
	Trigger()
}

// CollectRunner runs the due collection passes.
type CollectRunner interface {
	CollectDue(ctx context.Context) error
}

// Sweeper dead-letters expired queue messages.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler drives the recurring work of the daemon: collection passes on a
// cron, queue TTL sweeps on a fixed interval, and the healthcheck cadence.
type Scheduler struct {
	cfg     *config.Config
	runner  CollectRunner
	sweeper Sweeper
	cron    *cron.Cron
	stopCh  chan struct{}

	mu      sync.Mutex
	running bool

	healthcheckWorker Triggerable
	snapshotWorker    Triggerable
}

func New(cfg *config.Config, runner CollectRunner, sweeper Sweeper) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		sweeper: sweeper,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

// SetWorkers registers background workers for scheduled triggering.
func (s *Scheduler) SetWorkers(healthcheck, snapshot Triggerable) {
	s.healthcheckWorker = healthcheck
	s.snapshotWorker = snapshot
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollSweeps(ctx)

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runCollection(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	} else {
		log.Println("No collection cron configured, collection only runs via -collect")
	}

	if s.cfg.Scheduler.HealthcheckCron != "" {
		_, err := s.cron.AddFunc(s.cfg.Scheduler.HealthcheckCron, func() {
			if s.healthcheckWorker != nil {
				s.healthcheckWorker.Trigger()
			}
			if s.snapshotWorker != nil {
				s.snapshotWorker.Trigger()
			}
		})
		if err != nil {
			return fmt.Errorf("invalid healthcheck cron: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.stopCh)
}

// TriggerNow runs the due collection passes immediately.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("collection already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.runner.CollectDue(ctx)
}

// runCollection is the cron entrypoint. Overlapping ticks are dropped; a
// collection pass can outlast the cron period.
func (s *Scheduler) runCollection(ctx context.Context) {
	if err := s.TriggerNow(ctx); err != nil {
		log.Printf("Scheduled collection: %v", err)
	}
}

func (s *Scheduler) pollSweeps(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			moved, err := s.sweeper.SweepExpired(ctx)
			if err != nil {
				log.Printf("Queue sweep error: %v", err)
				continue
			}
			if moved > 0 {
				log.Printf("Queue sweep: %d expired tasks dead-lettered", moved)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
