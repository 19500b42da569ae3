package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/monkeycs60/vincent/internal/app"
	"github.com/monkeycs60/vincent/internal/models"
	"github.com/monkeycs60/vincent/internal/services"
	"github.com/monkeycs60/vincent/pkg/logger"
)

const defaultSpec = "15 0 * * *"

// Generator runs one generation pipeline pass.
type Generator interface {
	Generate(ctx context.Context, trigger string) (*models.Image, error)
}

// Scheduler triggers a daily generation run on a cron schedule, evaluated in
// the configured timezone so the publication hour stays stable across DST.
type Scheduler struct {
	generator Generator
	cron      *cron.Cron
	spec      string
	location  *time.Location
	enabled   bool
	log       *zap.Logger
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// NewScheduler builds a scheduler from configuration. A disabled scheduler is
// still constructed so RunOnce keeps working for manual invocations.
func NewScheduler(generator Generator, cfg app.SchedulerConfig, opts ...Option) (*Scheduler, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}

	location := time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid timezone %q: %w", cfg.Timezone, err)
		}
		location = loc
	}

	spec := cfg.Spec
	if spec == "" {
		spec = defaultSpec
	}

	s := &Scheduler{
		generator: generator,
		spec:      spec,
		location:  location,
		enabled:   cfg.Enabled,
		log:       logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(location), cron.WithLogger(cron.DiscardLogger))
	}

	return s, nil
}

// Start registers the daily job and launches the scheduler. A disabled
// scheduler starts nothing and returns nil.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.log.Info("scheduler disabled, daily generation will not run")
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("scheduled generation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler: register job: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("spec", s.spec),
		zap.String("timezone", s.location.String()))
	return nil
}

// Stop halts the scheduler, waiting for a running job to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes a single generation pass as if the schedule had fired.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	image, err := s.generator.Generate(ctx, services.TriggerCron)
	if err != nil {
		return err
	}

	s.log.Info("daily image published",
		zap.String("imageId", image.ID),
		zap.String("title", image.Title),
		zap.String("url", image.URL))
	return nil
}
