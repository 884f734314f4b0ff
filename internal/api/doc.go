// Package api содержит HTTP API сервера wikiops.
//
// Структура:
//   - handler.go           — Handler с зависимостями (планировщик, история, webhook)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery, auth, rate limit)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - scheduler_handler.go — /scheduler и ручной запуск задач
//   - runs_handler.go      — история выполнений
//   - webhook_handler.go   — приём webhook GitHub
//
// Административные маршруты закрыты bearer-токеном. Webhook проверяется
// подписью HMAC и токена не требует.
package api
