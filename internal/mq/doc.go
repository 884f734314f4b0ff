// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Используется как долговечная очередь webhook-событий: HTTP-обработчик
// публикует проверенное событие и сразу отвечает 200, а потребитель
// на любом экземпляре передаёт его обработчику.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Топология:
//
//	wikiops.webhooks (direct)
//	└── webhooks.events [routing: event], DLQ: dlq.webhooks
//	wikiops.dlq (direct)
//	└── dlq.webhooks [routing: webhooks]
package mq
