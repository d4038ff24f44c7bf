package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Conveyor/internal/domain"
)

// JobRepo — репозиторий результатов jobs.
type JobRepo struct {
	db querier
}

// NewJobRepo создаёт новый JobRepo. db — пул или транзакция.
func NewJobRepo(db querier) *JobRepo {
	return &JobRepo{db: db}
}

// SaveAll сохраняет результаты jobs run. Повторное сохранение перезаписывает их.
func (r *JobRepo) SaveAll(ctx context.Context, runID uuid.UUID, jobs []domain.JobResult) error {
	query := `
		INSERT INTO jobs (run_id, idx, name, matrix, status, steps, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, idx) DO UPDATE
		SET name = EXCLUDED.name, matrix = EXCLUDED.matrix, status = EXCLUDED.status,
		    steps = EXCLUDED.steps, started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at
	`

	for i := range jobs {
		job := &jobs[i]

		matrixJSON, err := json.Marshal(job.Job.Matrix)
		if err != nil {
			return fmt.Errorf("marshal matrix: %w", err)
		}
		stepsJSON, err := json.Marshal(job.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps: %w", err)
		}

		_, err = r.db.Exec(ctx, query,
			runID,
			job.Job.Index,
			job.Job.Name,
			matrixJSON,
			job.Status,
			stepsJSON,
			job.StartedAt,
			job.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("save job %s: %w", job.Job.Name, err)
		}
	}
	return nil
}

// ListByRunID возвращает jobs run в порядке матрицы.
func (r *JobRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error) {
	query := `
		SELECT idx, name, matrix, status, steps, started_at, finished_at
		FROM jobs
		WHERE run_id = $1
		ORDER BY idx ASC
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.JobResult{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.JobResult, error) {
	var job domain.JobResult
	var matrixJSON, stepsJSON []byte

	err := row.Scan(
		&job.Job.Index,
		&job.Job.Name,
		&matrixJSON,
		&job.Status,
		&stepsJSON,
		&job.StartedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(matrixJSON, &job.Job.Matrix); err != nil {
		return nil, fmt.Errorf("unmarshal matrix: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &job.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return &job, nil
}
