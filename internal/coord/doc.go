// Package coord — клиент координационного хранилища.
//
// Хранилище предоставляет одну атомарную операцию: "занять ключ, если он
// свободен, истёк или уже принадлежит этому же владельцу" с TTL.
// На ней построены лидерство (internal/leader), блокировки задач
// (internal/scheduler) и дедупликация webhook-доставок (internal/webhook).
//
// Реализации:
//   - memory.go   — in-process хранилище (один экземпляр, тесты)
//   - postgres.go — таблица coord_leases, условный upsert через pgx
//
// Никаких read-modify-write: каждая запись — один условный SQL-запрос
// или одна операция под мьютексом.
package coord
