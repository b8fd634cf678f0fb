package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/foodcost/internal/config"
	"github.com/mamadbah2/foodcost/internal/domain/models"
	"github.com/mamadbah2/foodcost/pkg/clients/notify"
)

const (
	runTimeout     = 5 * time.Minute
	maxConcurrency = 4
)

// Worksheets is the part of the worksheet service the nightly run needs.
type Worksheets interface {
	ListActiveRestaurants(ctx context.Context) ([]models.Restaurant, error)
	Recompute(ctx context.Context, restaurantID, date string) (models.DailySummary, error)
	GetDay(ctx context.Context, restaurantID, date string) (models.DaySnapshot, error)
}

// Reporter builds the digest and publishes days.
type Reporter interface {
	DailyDigest(ctx context.Context, date string) (string, error)
	PublishDay(ctx context.Context, restaurant models.Restaurant, day models.DaySnapshot) error
	PublishingEnabled() bool
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	location   *time.Location
	worksheets Worksheets
	reporter   Reporter
	notifier   notify.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewScheduler creates a new scheduler instance. notifier may be nil.
func NewScheduler(cfg config.ReportingConfig, worksheets Worksheets, reporter Reporter, notifier notify.Client, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	location := cfg.Location()
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(location)),
		schedule:   cfg.CronSchedule,
		location:   location,
		worksheets: worksheets,
		reporter:   reporter,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Start schedules the daily run and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule), zap.String("timezone", s.location.String()))

	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("schedule daily run %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	date := s.now().In(s.location).Format(models.DateLayout)
	if err := s.RunDaily(ctx, date); err != nil {
		s.logger.Error("daily run finished with errors", zap.String("date", date), zap.Error(err))
		return
	}
	s.logger.Info("daily run completed", zap.String("date", date))
}

// RunDaily recomputes every active restaurant's day, publishes it when Sheets
// is configured and sends the digest. A failing restaurant does not stop the
// others; the returned error counts the failures.
func (s *Scheduler) RunDaily(ctx context.Context, date string) error {
	restaurants, err := s.worksheets.ListActiveRestaurants(ctx)
	if err != nil {
		return fmt.Errorf("list restaurants: %w", err)
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for _, restaurant := range restaurants {
		g.Go(func() error {
			if err := s.reconcile(ctx, restaurant, date); err != nil {
				failed.Add(1)
				s.logger.Error("reconcile restaurant failed",
					zap.String("restaurant_id", restaurant.ID),
					zap.String("date", date),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.sendDigest(ctx, date); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d restaurants failed", n, len(restaurants))
	}
	return nil
}

func (s *Scheduler) reconcile(ctx context.Context, restaurant models.Restaurant, date string) error {
	if _, err := s.worksheets.Recompute(ctx, restaurant.ID, date); err != nil {
		return err
	}
	if !s.reporter.PublishingEnabled() {
		return nil
	}
	day, err := s.worksheets.GetDay(ctx, restaurant.ID, date)
	if err != nil {
		return err
	}
	return s.reporter.PublishDay(ctx, restaurant, day)
}

func (s *Scheduler) sendDigest(ctx context.Context, date string) error {
	if s.notifier == nil {
		return nil
	}

	digest, err := s.reporter.DailyDigest(ctx, date)
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}
	if err := s.notifier.SendText(ctx, digest); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	s.logger.Info("daily digest sent", zap.String("date", date))
	return nil
}
