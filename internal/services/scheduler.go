package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/robfig/cron/v3"
)

type SchedulerConfig struct {
	Schedule   string
	AutoFinish bool
	InstanceID string
}

// CronAuctionScheduler sweeps due jobs and expired auctions. Only the leader
// instance does any work on a tick.
type CronAuctionScheduler struct {
	cron           *cron.Cron
	repo           domain.SchedulerRepository
	auctionMgr     *AuctionManager
	leaderElection domain.LeaderElection
	cfg            SchedulerConfig
	log            logger.Logger
	sweepMu        sync.Mutex
	now            func() time.Time
}

func NewCronAuctionScheduler(repo domain.SchedulerRepository, auctionMgr *AuctionManager,
	leaderElection domain.LeaderElection, cfg SchedulerConfig, log logger.Logger) *CronAuctionScheduler {
	return &CronAuctionScheduler{
		cron:           cron.New(),
		repo:           repo,
		auctionMgr:     auctionMgr,
		leaderElection: leaderElection,
		cfg:            cfg,
		log:            log,
		now:            time.Now,
	}
}

func (s *CronAuctionScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting auction scheduler", "schedule", s.cfg.Schedule)

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *CronAuctionScheduler) Stop() error {
	s.log.Info("Stopping auction scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// Sweep runs one scheduler tick. Overlapping ticks are skipped.
func (s *CronAuctionScheduler) Sweep(ctx context.Context) {
	if !s.sweepMu.TryLock() {
		s.log.Debug("Previous sweep still running")
		return
	}
	defer s.sweepMu.Unlock()

	isLeader, err := s.leaderElection.IsLeader(ctx, s.cfg.InstanceID)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return
	}
	if !isLeader {
		return
	}

	s.processPendingJobs(ctx)
	if s.cfg.AutoFinish {
		if n, err := s.auctionMgr.FinishExpired(ctx); err != nil {
			s.log.Error("Failed to finish expired auctions", "error", err)
		} else if n > 0 {
			s.log.Info("Finished expired auctions", "count", n)
		}
	}
}

func (s *CronAuctionScheduler) processPendingJobs(ctx context.Context) {
	jobs, err := s.repo.GetPendingJobs(ctx, s.now())
	if err != nil {
		s.log.Error("Failed to get pending jobs", "error", err)
		return
	}

	for _, job := range jobs {
		s.log.Info("Processing job", "job_id", job.ID, "type", job.JobType, "item_id", job.ItemID)

		var err error
		switch job.JobType {
		case domain.JobStartAuction:
			_, err = s.auctionMgr.Start(ctx, job.ItemID)
		case domain.JobFinishAuction:
			_, err = s.auctionMgr.Stop(ctx, job.ItemID)
		default:
			s.log.Warn("Unknown job type", "job_id", job.ID, "type", job.JobType)
			s.markJob(ctx, job, domain.JobCancelled)
			continue
		}

		if err != nil {
			if isPermanentJobError(err) {
				s.log.Warn("Job can no longer run, cancelling", "job_id", job.ID, "error", err)
				s.markJob(ctx, job, domain.JobCancelled)
				continue
			}
			s.log.Error("Failed to execute job", "job_id", job.ID, "error", err)
			// Don't mark as executed on error, will retry
			continue
		}

		s.markJob(ctx, job, domain.JobExecuted)
	}
}

func (s *CronAuctionScheduler) markJob(ctx context.Context, job *domain.ScheduledJob, status domain.JobStatus) {
	if err := s.repo.UpdateJobStatus(ctx, job.ID, status); err != nil {
		s.log.Error("Failed to update job status", "job_id", job.ID, "status", status, "error", err)
	}
}

func isPermanentJobError(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrItemNotFound) ||
		errors.Is(err, domain.ErrNotOnlineAuction) ||
		errors.Is(err, domain.ErrNotTimedAuction)
}
