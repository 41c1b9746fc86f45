package memory

import (
	"context"
	"sort"
	"time"

	"auction-storefront/internal/domain"
)

func (s *Store) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *job
	s.jobs[job.ID] = &c
	return nil
}

func (s *Store) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*domain.ScheduledJob
	for _, job := range s.jobs {
		if job.Status == domain.JobPending && !job.RunAt.After(before) {
			c := *job
			jobs = append(jobs, &c)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].RunAt.Before(jobs[j].RunAt) })
	return jobs, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	return nil
}

func (s *Store) CancelJobsForItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.ItemID == itemID && job.Status == domain.JobPending {
			job.Status = domain.JobCancelled
		}
	}
	return nil
}
