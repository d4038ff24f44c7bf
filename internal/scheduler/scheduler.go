package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

const defaultInterval = time.Second

// Dispatcher принимает событие schedule.
// В распределённом режиме публикует его в RabbitMQ, локально — выполняет run.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// DispatchFunc — адаптер функции к Dispatcher.
type DispatchFunc func(ctx context.Context, event domain.Event) error

// Dispatch вызывает f.
func (f DispatchFunc) Dispatch(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// StateStore хранит время запусков между рестартами. Реализация: repo.ScheduleRepo.
type StateStore interface {
	Load(ctx context.Context, workflow string, sched *domain.Schedule) error
	Save(ctx context.Context, workflow string, sched *domain.Schedule) error
}

// Scheduler — планировщик cron-расписаний одного workflow.
type Scheduler struct {
	workflow   string
	schedules  []*domain.Schedule
	dispatcher Dispatcher
	store      StateStore
	interval   time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

// Config — конфигурация Scheduler.
type Config struct {
	// Workflow — workflow, расписания которого обслуживаются.
	Workflow *domain.Workflow

	// Dispatcher — получатель событий schedule.
	Dispatcher Dispatcher

	// Store — хранилище состояния (опционально).
	Store StateStore

	// Interval — период тиков в Run (default: 1s).
	Interval time.Duration

	Logger *slog.Logger
}

// New создаёт новый Scheduler. Расписания workflow копируются.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	s := &Scheduler{
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		interval:   interval,
		logger:     logger,
	}
	if cfg.Workflow != nil {
		s.workflow = cfg.Workflow.Name
		for i := range cfg.Workflow.Schedules {
			sched := cfg.Workflow.Schedules[i]
			s.schedules = append(s.schedules, &sched)
		}
	}
	return s
}

// Schedules возвращает копию текущего состояния расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	for i, sched := range s.schedules {
		out[i] = *sched
	}
	return out
}

// Init загружает сохранённое состояние и вычисляет первое время запуска
// для расписаний без него.
func (s *Scheduler) Init(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sched := range s.schedules {
		if s.store != nil {
			err := s.store.Load(ctx, s.workflow, sched)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("load schedule %q: %w", sched.CronExpr, err)
			}
		}

		if sched.NextDueAt != nil {
			continue
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			return err
		}
		sched.NextDueAt = &next

		if s.store != nil {
			if err := s.store.Save(ctx, s.workflow, sched); err != nil {
				return fmt.Errorf("save schedule %q: %w", sched.CronExpr, err)
			}
		}
	}

	s.logger.Info("scheduler initialized", "workflow", s.workflow, "schedules", len(s.schedules))
	return nil
}

// Tick выполняет один тик планировщика.
//
// 1. Находит расписания с NextDueAt <= now
// 2. Для каждого отправляет событие schedule
// 3. Сдвигает NextDueAt на следующее срабатывание после now
//
// Пропущенные за время простоя срабатывания схлопываются в одно.
// Ошибки одного расписания не блокируют обработку остальных.
// Возвращает количество отправленных событий.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired int
	var errs []error

	for _, sched := range s.schedules {
		if sched.NextDueAt == nil {
			next, err := CalculateNextDue(sched, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			sched.NextDueAt = &next
		}
		if !sched.IsDue(now) {
			continue
		}

		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"workflow", s.workflow,
				"cron", sched.CronExpr,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		fired++
	}

	if fired > 0 {
		s.logger.Info("scheduler tick completed", "workflow", s.workflow, "fired", fired)
	}
	return fired, errors.Join(errs...)
}

// fire отправляет событие и сдвигает расписание.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	next, err := CalculateNextDue(sched, now)
	if err != nil {
		return err
	}

	event := sched.Event()
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch schedule event: %w", err)
	}

	s.logger.Info("schedule fired",
		"workflow", s.workflow,
		"cron", sched.CronExpr,
		"branch", sched.Branch,
		"next_due_at", next,
	)

	sched.RecordRun(now, next)
	if s.store != nil {
		if err := s.store.Save(ctx, s.workflow, sched); err != nil {
			// событие уже отправлено, расписание сдвинуто в памяти
			s.logger.Warn("failed to save schedule state", "cron", sched.CronExpr, "error", err)
		}
	}
	return nil
}

// Run вызывает Tick каждые Interval, пока не отменён ctx.
//
// leader вызывается перед каждым тиком; false — тик пропускается.
// nil leader — всегда лидер.
func (s *Scheduler) Run(ctx context.Context, leader func(ctx context.Context) bool) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			if leader != nil && !leader(ctx) {
				continue
			}
			if _, err := s.Tick(ctx, t); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}
