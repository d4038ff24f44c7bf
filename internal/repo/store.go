package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Store объединяет runs и jobs: run сохраняется вместе со своими jobs.
type Store struct {
	pool *pgxpool.Pool
	Runs *RunRepo
	Jobs *JobRepo
}

// NewStore создаёт Store поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		Runs: NewRunRepo(pool),
		Jobs: NewJobRepo(pool),
	}
}

// CreateRun сохраняет новый run.
func (s *Store) CreateRun(ctx context.Context, run *domain.RunResult) error {
	return s.Runs.Create(ctx, run)
}

// FinishRun сохраняет вердикт run и результаты jobs в одной транзакции.
func (s *Store) FinishRun(ctx context.Context, run *domain.RunResult) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := NewRunRepo(tx).Update(ctx, run); err != nil {
			return err
		}
		if err := NewJobRepo(tx).SaveAll(ctx, run.ID, run.Jobs); err != nil {
			return fmt.Errorf("save jobs: %w", err)
		}
		return nil
	})
}

// GetRun возвращает run вместе с jobs.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*domain.RunResult, error) {
	run, err := s.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Jobs, err = s.Jobs.ListByRunID(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns возвращает runs без jobs.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]domain.RunResult, error) {
	return s.Runs.List(ctx, filter)
}

// ListJobs возвращает jobs run.
func (s *Store) ListJobs(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error) {
	return s.Jobs.ListByRunID(ctx, runID)
}
