// Package orchestrator превращает принятое событие в вердикт run.
//
// Orchestrator отвечает за:
//   - Проверку события правилами запуска (Trigger Listener)
//   - Разворачивание матрицы в jobs
//   - Конкурентный запуск jobs с fail-fast и max-parallel (Job Scheduler)
//   - Сведение результатов jobs в итог run (Result Aggregator)
//   - Сохранение run и публикацию run.completed
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
