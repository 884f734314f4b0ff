// Package scheduler реализует ядро планировщика задач.
//
// Scheduler раз в TickInterval проверяет, какие задачи реестра наступили,
// и запускает их. Запуск по расписанию выполняет только лидер; ручной запуск
// (RunManually) доступен на любом экземпляре.
//
// Структура:
//   - scheduler.go — жизненный цикл (Start/Stop), тик и Status
//   - execute.go   — выполнение одного run: блокировка, таймаут, запись в историю
//   - manual.go    — ручной запуск и dry-run
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Registry: reg,
//	    Locks:    coordStore,
//	    History:  historyStore,
//	    Elector:  elector, // nil — одиночный экземпляр, всегда лидер
//	    HolderID: instanceID,
//	    Logger:   logger,
//	})
//
//	sched.Start(ctx)
//	defer sched.Stop(shutdownCtx)
//
// Гарантии:
//
// Для forbid-overlap задач единственный механизм корректности — блокировка
// задачи в координационном хранилище (ключ job-lock:<name>). Лидерство
// лишь убирает дублирующие срабатывания таймера на разных экземплярах.
//
// Следующее время запуска вычисляется в момент срабатывания, поэтому
// пропущенные интервалы схлопываются в один запуск, а не ставятся в очередь.
package scheduler
