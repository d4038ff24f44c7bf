package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// cronParser — парсер cron-выражений: пять полей или @daily и т.п., как cron.ParseStandard.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
//
// Учитывает timezone расписания, результат возвращается в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		l, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", sched.Timezone, err)
		}
		loc = l
	}

	schedule, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
