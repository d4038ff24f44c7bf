package repo

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ScheduleRepo хранит состояние cron-расписаний между рестартами:
// время последнего и следующего запуска.
//
// Сами расписания объявлены в workflow, ключ — (workflow, cron, branch).
type ScheduleRepo struct {
	db querier
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(db querier) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// Load заполняет NextDueAt и LastRunAt сохранённым состоянием.
// Возвращает ErrNotFound, если расписание ещё не сохранялось.
func (r *ScheduleRepo) Load(ctx context.Context, workflow string, sched *domain.Schedule) error {
	query := `
		SELECT next_due_at, last_run_at
		FROM schedules
		WHERE workflow = $1 AND cron_expr = $2 AND branch = $3
	`
	err := r.db.QueryRow(ctx, query, workflow, sched.CronExpr, sched.Branch).
		Scan(&sched.NextDueAt, &sched.LastRunAt)
	return scanErr("load schedule", err)
}

// Save сохраняет состояние расписания.
func (r *ScheduleRepo) Save(ctx context.Context, workflow string, sched *domain.Schedule) error {
	timezone := sched.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	query := `
		INSERT INTO schedules (workflow, cron_expr, branch, timezone, next_due_at, last_run_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (workflow, cron_expr, branch) DO UPDATE
		SET timezone = EXCLUDED.timezone, next_due_at = EXCLUDED.next_due_at,
		    last_run_at = EXCLUDED.last_run_at, updated_at = now()
	`
	_, err := r.db.Exec(ctx, query,
		workflow,
		sched.CronExpr,
		sched.Branch,
		timezone,
		sched.NextDueAt,
		sched.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}
