// Package scheduler запускает workflow по cron-расписаниям (on.schedule).
//
// Scheduler периодически проверяет расписания с истекшим next_due_at
// и отправляет событие schedule для ветки по умолчанию.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Init, Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Workflow:   wf,
//	    Dispatcher: scheduler.DispatchFunc(publisher.PublishEventReceived),
//	    Store:      repo.NewScheduleRepo(pool), // опционально
//	    Logger:     logger,
//	})
//	if err := sched.Init(ctx, time.Now()); err != nil { ... }
//	sched.Run(ctx, leader)
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock и передаётся в Run.
package scheduler
