// Package telemetry — логи и метрики Conveyor.
//
// Логгер настраивается переменными LOG_LEVEL и LOG_FORMAT и передаётся
// вниз по стеку через context: run, job и доставка из очереди добавляют
// свои атрибуты (run_id, job, message_id). Метрики регистрируются в
// переданном prometheus.Registerer, все методы Metrics допускают nil
// получатель.
package telemetry
