package fetcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/robert-nguyenn/strategy-engine/internal/cache"
	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/internal/fingerprint"
	"github.com/robert-nguyenn/strategy-engine/internal/models"
	"github.com/robert-nguyenn/strategy-engine/internal/store"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

var (
	discoveryJobs = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fetcher_scheduled_jobs",
			Help: "Number of indicator refresh jobs currently scheduled",
		},
		func() float64 { return float64(activeJobs.Load()) },
	)

	discoverySyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_discovery_sync_actions_total",
			Help: "Total number of discovery sync job changes",
		},
		[]string{"action"}, // "added" or "pruned"
	)
)

var activeJobs atomic.Int64

// Scheduler discovers active indicator profiles and keeps one cron job per
// profile fingerprint. Profiles no longer referenced by any active strategy
// are pruned on the next discovery pass.
type Scheduler struct {
	config  config.FetcherConfig
	store   store.StrategyStore
	service *Service
	cache   *cache.Cache

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]scheduledJob
}

type scheduledJob struct {
	entryID cron.EntryID
	profile *models.IndicatorProfile
}

// NewScheduler creates a discovery scheduler.
func NewScheduler(cfg config.FetcherConfig, st store.StrategyStore, service *Service, c *cache.Cache) *Scheduler {
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		config:  cfg,
		store:   st,
		service: service,
		cache:   c,
		cron:    cron.New(),
		ctx:     ctx,
		stop:    stop,
		jobs:    make(map[string]scheduledJob),
	}
}

// Start runs an initial discovery pass, schedules the recurring discovery and
// cache optimizer jobs, and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, _, err := s.Sync(s.ctx); err != nil {
		return fmt.Errorf("initial discovery failed: %w", err)
	}

	discoverySpec := fmt.Sprintf("@every %s", s.config.DiscoveryInterval)
	if _, err := s.cron.AddFunc(discoverySpec, func() {
		if _, _, err := s.Sync(s.ctx); err != nil {
			logger.Error("Discovery sync failed", logger.ErrorField(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule discovery: %w", err)
	}

	if _, err := s.cron.AddFunc(s.config.OptimizeSpec, func() {
		s.cache.Optimize(s.ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule cache optimizer: %w", err)
	}

	s.cron.Start()
	logger.Info("Fetch scheduler started",
		logger.String("discovery_interval", s.config.DiscoveryInterval.String()),
		logger.String("optimize_spec", s.config.OptimizeSpec),
	)
	return nil
}

// Stop halts the cron runner and waits for in-flight refreshes.
func (s *Scheduler) Stop() {
	logger.Info("Stopping fetch scheduler")
	s.stop()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logger.Info("Fetch scheduler stopped")
}

// Sync reconciles scheduled jobs against the active profiles in the store.
// New profiles get a cron entry at an interval-appropriate spec, vanished
// profiles are removed. A second pass over an unchanged store is a no-op.
func (s *Scheduler) Sync(ctx context.Context) (added, pruned int, err error) {
	profiles, err := s.store.ListActiveIndicatorProfiles(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list active indicator profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]bool, len(profiles))
	for _, profile := range profiles {
		fp := fingerprint.ForProfile(profile)
		active[fp] = true
		if _, exists := s.jobs[fp]; exists {
			continue
		}

		profile := profile
		entryID, addErr := s.cron.AddFunc(cronSpecForInterval(profile.Interval), func() {
			s.refresh(profile)
		})
		if addErr != nil {
			logger.Error("Failed to schedule indicator refresh",
				logger.ErrorField(addErr),
				logger.String("cache_key", fp),
			)
			continue
		}
		s.jobs[fp] = scheduledJob{entryID: entryID, profile: profile}
		added++
		discoverySyncs.WithLabelValues("added").Inc()
		logger.Info("Scheduled indicator refresh",
			logger.String("cache_key", fp),
			logger.String("interval", profile.Interval),
		)

		// Warm the cache immediately instead of waiting for the first tick.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.service.RefreshProfile(s.ctx, profile); err != nil {
				logger.Error("Initial indicator refresh failed", logger.ErrorField(err))
			}
		}()
	}

	for fp, job := range s.jobs {
		if active[fp] {
			continue
		}
		s.cron.Remove(job.entryID)
		delete(s.jobs, fp)
		pruned++
		discoverySyncs.WithLabelValues("pruned").Inc()
		logger.Info("Pruned indicator refresh job", logger.String("cache_key", fp))
	}

	activeJobs.Store(int64(len(s.jobs)))
	return added, pruned, nil
}

// JobCount returns the number of scheduled refresh jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) refresh(profile *models.IndicatorProfile) {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.service.RefreshProfile(s.ctx, profile); err != nil {
		logger.Error("Scheduled indicator refresh failed", logger.ErrorField(err))
	}
}

// cronSpecForInterval maps an indicator interval to its refresh schedule.
// Daily and slower series refresh after the market close; intraday series
// refresh on their own cadence.
func cronSpecForInterval(interval string) string {
	switch interval {
	case cache.Interval1Min:
		return "* * * * *"
	case cache.Interval5Min:
		return "*/5 * * * *"
	case cache.Interval15Min:
		return "*/15 * * * *"
	case cache.Interval30Min:
		return "*/30 * * * *"
	case cache.Interval60Min:
		return "0 * * * *"
	case cache.IntervalDaily:
		return "15 21 * * 1-5"
	case cache.IntervalWeekly:
		return "30 21 * * 5"
	case cache.IntervalMonthly:
		return "0 22 1 * *"
	default:
		return "*/5 * * * *"
	}
}
