package domain

import "time"

// Schedule — cron-расписание workflow (секция on.schedule).
//
// Scheduler проверяет NextDueAt и создаёт событие schedule, когда время подошло.
type Schedule struct {
	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 3 * * *"     — каждый день в 3:00
	//   "*/30 * * * *"  — каждые 30 минут
	CronExpr string `json:"cron"`

	// Branch — ветка, на которой запускается pipeline.
	Branch string `json:"branch"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию: "UTC".
	Timezone string `json:"timezone,omitempty"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(at, nextDue time.Time) {
	s.LastRunAt = &at
	s.NextDueAt = &nextDue
}

// Event возвращает событие, которое создаёт срабатывание расписания.
func (s *Schedule) Event() Event {
	return Event{Kind: EventSchedule, Branch: s.Branch, Cron: s.CronExpr}
}
