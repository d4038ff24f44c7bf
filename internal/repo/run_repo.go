package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Conveyor/internal/domain"
)

const runColumns = `id, workflow, event, status, warnings, error, started_at, finished_at, created_at`

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	db querier
}

// NewRunRepo создаёт новый RunRepo. db — пул или транзакция.
func NewRunRepo(db querier) *RunRepo {
	return &RunRepo{db: db}
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.RunResult) error {
	eventJSON, err := json.Marshal(run.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	warningsJSON, err := marshalWarnings(run.Warnings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.Workflow,
		eventJSON,
		run.Status,
		warningsJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID (без jobs).
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.RunResult, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.db.QueryRow(ctx, query, id))
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.RunResult, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR workflow = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.Workflow),
		nullString(string(filter.Status)),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Update обновляет статус, время и ошибку run.
func (r *RunRepo) Update(ctx context.Context, run *domain.RunResult) error {
	warningsJSON, err := marshalWarnings(run.Warnings)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs
		SET status = $2, started_at = $3, finished_at = $4, error = $5, warnings = $6
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		run.ID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		warningsJSON,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// DefaultListLimit — размер страницы по умолчанию.
const DefaultListLimit = 50

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Workflow string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// scanRun сканирует одну строку в RunResult.
func scanRun(row pgx.Row) (*domain.RunResult, error) {
	var run domain.RunResult
	var eventJSON, warningsJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.Workflow,
		&eventJSON,
		&run.Status,
		&warningsJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err := scanErr("scan run", err); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventJSON, &run.Event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if warningsJSON != nil {
		if err := json.Unmarshal(warningsJSON, &run.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

func marshalWarnings(warnings []string) ([]byte, error) {
	if warnings == nil {
		warnings = []string{}
	}
	b, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return b, nil
}
