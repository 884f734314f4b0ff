// Package cli реализует административный инструмент wikiops.
//
// CLI работает через HTTP API сервера и не импортирует внутренние
// пакеты системы. Токен администратора передаётся флагом --token
// или переменной WIKIOPS_TOKEN.
//
// # Ключевые компоненты
//
// Client — HTTP-клиент для API: разбирает DataResponse, ListResponse
// и ErrorResponse, ошибки API возвращает как *APIError.
//
//	client := cli.NewClient("http://localhost:8080", token)
//	st, err := client.Status()
//
// Output — форматирование вывода: таблицы (text/tabwriter) по умолчанию
// и JSON с флагом --json. Данные идут в stdout, сообщения в stderr,
// поэтому работает pipe: wikiops history --json | jq .
//
// Команды: status, start, stop, run JOB [--dry-run], history [--job] [--limit].
// Фабрики команд принимают clientFn и outputFn — замыкания, которые
// создают Client и Output после разбора PersistentFlags.
package cli
