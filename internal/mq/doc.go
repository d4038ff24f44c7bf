// Package mq связывает компоненты Conveyor через RabbitMQ.
//
// API и scheduler публикуют события в conveyor.events, orchestrator читает
// очередь events.received и после каждого run публикует вердикт в
// conveyor.runs. Сообщения, которые не удалось обработать, попадают в
// dlq.events.
//
// Публикация синхронная: Publisher ждёт publisher confirm от брокера.
// Consumer работает на своём канале, обрабатывает до Prefetch сообщений
// параллельно и перезапускается после переподключения Connection.
package mq
