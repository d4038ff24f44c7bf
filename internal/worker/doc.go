// Package worker выполняет шаги одного job.
//
// Worker — это Step Executor pipeline:
//   - Выполняет шаги job строго по порядку
//   - Находит реализацию шага в steps.Registry в момент выполнения
//   - Останавливает job на первом упавшем шаге без continue-on-error,
//     оставшиеся шаги помечаются not_run
//   - Проверяет отмену только между шагами: уже запущенный шаг
//     доводится до конца (или до своего timeout-minutes)
//   - Никогда не повторяет шаг автоматически
//
// Worker не хранит состояние между вызовами RunJob и безопасен
// для конкурентного использования несколькими jobs.
package worker
