package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

type recorder struct {
	events []domain.Event
	err    error
}

func (r *recorder) Dispatch(_ context.Context, event domain.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type memState struct {
	saved map[string]domain.Schedule
}

func (m *memState) key(workflow string, s *domain.Schedule) string {
	return workflow + "|" + s.CronExpr + "|" + s.Branch
}

func (m *memState) Load(_ context.Context, workflow string, s *domain.Schedule) error {
	stored, ok := m.saved[m.key(workflow, s)]
	if !ok {
		return repo.ErrNotFound
	}
	s.NextDueAt, s.LastRunAt = stored.NextDueAt, stored.LastRunAt
	return nil
}

func (m *memState) Save(_ context.Context, workflow string, s *domain.Schedule) error {
	m.saved[m.key(workflow, s)] = *s
	return nil
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
}

func nightlyWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Name:      "nightly",
		Schedules: []domain.Schedule{{CronExpr: "0 3 * * *", Branch: "main"}},
	}
}

func newTestScheduler(d Dispatcher, store StateStore) *Scheduler {
	return New(Config{
		Workflow:   nightlyWorkflow(),
		Dispatcher: d,
		Store:      store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestTick(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(rec, nil)
	ctx := context.Background()

	if err := s.Init(ctx, at(1, 2, 0)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := *s.Schedules()[0].NextDueAt; !got.Equal(at(1, 3, 0)) {
		t.Fatalf("expected first due at 03:00, got %v", got)
	}

	if n, err := s.Tick(ctx, at(1, 2, 30)); err != nil || n != 0 {
		t.Errorf("nothing should fire before due time, got %d, %v", n, err)
	}

	n, err := s.Tick(ctx, at(1, 3, 0))
	if err != nil || n != 1 {
		t.Fatalf("expected one fired schedule, got %d, %v", n, err)
	}
	want := domain.Event{Kind: domain.EventSchedule, Branch: "main", Cron: "0 3 * * *"}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Errorf("unexpected events: %+v", rec.events)
	}

	sched := s.Schedules()[0]
	if !sched.NextDueAt.Equal(at(2, 3, 0)) {
		t.Errorf("expected next due on the next day, got %v", sched.NextDueAt)
	}
	if !sched.LastRunAt.Equal(at(1, 3, 0)) {
		t.Errorf("expected last run at 03:00, got %v", sched.LastRunAt)
	}
}

func TestTick_MissedRunsCollapse(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(rec, nil)
	ctx := context.Background()

	_ = s.Init(ctx, at(1, 2, 0))

	// Простой на несколько дней: одно событие, а не пять
	n, err := s.Tick(ctx, at(5, 10, 0))
	if err != nil || n != 1 {
		t.Fatalf("expected one fired schedule, got %d, %v", n, err)
	}
	if got := *s.Schedules()[0].NextDueAt; !got.Equal(at(6, 3, 0)) {
		t.Errorf("expected next due after now, got %v", got)
	}
}

func TestTick_DispatchError(t *testing.T) {
	rec := &recorder{err: errors.New("broker unavailable")}
	s := newTestScheduler(rec, nil)
	ctx := context.Background()

	_ = s.Init(ctx, at(1, 2, 0))

	n, err := s.Tick(ctx, at(1, 3, 0))
	if err == nil || n != 0 {
		t.Fatalf("expected error and nothing fired, got %d, %v", n, err)
	}
	if got := *s.Schedules()[0].NextDueAt; !got.Equal(at(1, 3, 0)) {
		t.Errorf("failed schedule must stay due, got %v", got)
	}

	rec.err = nil
	if n, _ := s.Tick(ctx, at(1, 3, 1)); n != 1 {
		t.Error("schedule should fire on the next tick")
	}
}

func TestInit_RestoresState(t *testing.T) {
	store := &memState{saved: map[string]domain.Schedule{}}
	ctx := context.Background()

	first := newTestScheduler(&recorder{}, store)
	_ = first.Init(ctx, at(1, 2, 0))
	if _, err := first.Tick(ctx, at(1, 3, 0)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Новый процесс поднимает состояние из хранилища
	second := newTestScheduler(&recorder{}, store)
	if err := second.Init(ctx, at(1, 4, 0)); err != nil {
		t.Fatalf("init: %v", err)
	}
	sched := second.Schedules()[0]
	if !sched.NextDueAt.Equal(at(2, 3, 0)) || sched.LastRunAt == nil {
		t.Errorf("state should be restored, got %+v", sched)
	}
}

func TestCalculateNextDue(t *testing.T) {
	tests := []struct {
		name    string
		sched   domain.Schedule
		from    time.Time
		want    time.Time
		wantErr bool
	}{
		{"every 30 minutes", domain.Schedule{CronExpr: "*/30 * * * *"}, at(1, 10, 5), at(1, 10, 30), false},
		{"daily", domain.Schedule{CronExpr: "0 3 * * *"}, at(1, 3, 0), at(2, 3, 0), false},
		{"weekdays", domain.Schedule{CronExpr: "0 9 * * 1-5"}, at(3, 12, 0), at(5, 9, 0), false},
		{"invalid cron", domain.Schedule{CronExpr: "not a cron"}, at(1, 0, 0), time.Time{}, true},
		{"six fields rejected", domain.Schedule{CronExpr: "0 0 3 * * *"}, at(1, 0, 0), time.Time{}, true},
		{"invalid timezone", domain.Schedule{CronExpr: "0 3 * * *", Timezone: "Mars/Olympus"}, at(1, 0, 0), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&tt.sched, tt.from)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCalculateNextDue_Timezone(t *testing.T) {
	if _, err := time.LoadLocation("Europe/Moscow"); err != nil {
		t.Skip("tzdata not available")
	}

	sched := &domain.Schedule{CronExpr: "0 3 * * *", Timezone: "Europe/Moscow"}
	// 02:00 MSK = 23:00 UTC накануне
	from := time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC)

	got, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := at(1, 0, 0); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != time.UTC {
		t.Error("result should be in UTC")
	}
}
