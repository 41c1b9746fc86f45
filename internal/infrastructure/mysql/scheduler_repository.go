package mysql

import (
	"context"
	"fmt"
	"time"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
)

func (s *Store) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	query, args, err := s.SqlBuilder.
		Insert("scheduled_jobs").
		Columns("id", "item_id", "job_type", "run_at", "status", "created_at").
		Values(job.ID, job.ItemID, string(job.JobType), job.RunAt.UTC(), string(job.Status), job.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.Database.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) pendingJobsQuery(before time.Time) (string, []interface{}, error) {
	return s.SqlBuilder.
		Select("id", "item_id", "job_type", "run_at", "status", "created_at").
		From("scheduled_jobs").
		Where(squirrel.Eq{"status": string(domain.JobPending)}).
		Where(squirrel.LtOrEq{"run_at": before.UTC()}).
		OrderBy("run_at ASC").
		ToSql()
}

func (s *Store) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	query, args, err := s.pendingJobsQuery(before)
	if err != nil {
		return nil, err
	}

	rows, err := s.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		var job domain.ScheduledJob
		var jobType, status string

		err := rows.Scan(&job.ID, &job.ItemID, &jobType,
			&job.RunAt, &status, &job.CreatedAt)
		if err != nil {
			return nil, err
		}

		job.JobType = domain.JobType(jobType)
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	query, args, err := s.SqlBuilder.
		Update("scheduled_jobs").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.Database.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *Store) CancelJobsForItem(ctx context.Context, itemID string) error {
	query, args, err := s.SqlBuilder.
		Update("scheduled_jobs").
		Set("status", string(domain.JobCancelled)).
		Where(squirrel.Eq{"item_id": itemID, "status": string(domain.JobPending)}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.Database.ExecContext(ctx, query, args...)
	return err
}
