// Package api — HTTP API Conveyor.
//
// POST /api/v1/events принимает событие push/pull_request и ставит его в
// очередь orchestrator. GET /api/v1/workflow показывает загруженный
// workflow с развёрнутой матрицей, /api/v1/runs отдаёт историю runs.
//
// Обработчики возвращают error, а respondError переводит его в ответ
// {"error": {"code", "message", "request_id"}}: Problem как есть,
// repo.ErrNotFound в 404, ошибку конфигурации workflow в 422, остальное
// в 500.
package api
