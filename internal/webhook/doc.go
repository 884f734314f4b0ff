// Package webhook принимает доставки GitHub webhook.
//
// Путь запроса синхронный и быстрый: Verifier проверяет подпись
// HMAC-SHA256, Dispatcher отсекает повторы и ставит событие в Queue.
// Обработчики (Registry) выполняются уже после ответа 200.
//
// Структура:
//   - verifier.go   — проверка подписи и разбор заголовков
//   - dispatcher.go — Handle: проверка, отсечение повторов, постановка в очередь
//   - queue.go      — Pool, in-process очередь с воркерами
//   - amqp_queue.go — очередь поверх RabbitMQ
//   - registry.go   — тип события → обработчик
//   - handlers.go   — встроенные обработчики ping/issues/issue_comment/push
package webhook
