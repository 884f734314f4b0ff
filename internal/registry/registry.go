// Package registry — статический каталог задач.
//
// Каталог собирается один раз при старте процесса (из встроенных
// определений или YAML-файла) и дальше только читается, поэтому
// доступ к нему не требует блокировок.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/wikiops/internal/domain"
)

// DefaultTimeout — таймаут run'а, если он не задан в определении.
const DefaultTimeout = 10 * time.Minute

type entry struct {
	def      domain.JobDefinition
	schedule cron.Schedule
}

// Registry — неизменяемый каталог определений задач.
type Registry struct {
	jobs  map[string]entry
	names []string
}

// New проверяет определения и собирает каталог.
//
// Пустой Concurrency означает forbid-overlap, нулевой Timeout — DefaultTimeout.
func New(defs ...domain.JobDefinition) (*Registry, error) {
	r := &Registry{jobs: make(map[string]entry, len(defs))}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidJob)
		}
		if _, exists := r.jobs[def.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, def.Name)
		}
		if def.Handler == nil {
			return nil, fmt.Errorf("%w: job %s has no handler", ErrInvalidJob, def.Name)
		}

		sched, err := ParseSchedule(def.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s: %v", ErrInvalidJob, def.Name, err)
		}

		policy, err := domain.ParseConcurrencyPolicy(string(def.Concurrency))
		if err != nil {
			return nil, fmt.Errorf("%w: job %s: %v", ErrInvalidJob, def.Name, err)
		}
		def.Concurrency = policy

		if def.Timeout < 0 {
			return nil, fmt.Errorf("%w: job %s: negative timeout", ErrInvalidJob, def.Name)
		}
		if def.Timeout == 0 {
			def.Timeout = DefaultTimeout
		}

		r.jobs[def.Name] = entry{def: def, schedule: sched}
		r.names = append(r.names, def.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Get возвращает определение задачи по имени.
func (r *Registry) Get(name string) (domain.JobDefinition, error) {
	e, ok := r.jobs[name]
	if !ok {
		return domain.JobDefinition{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e.def, nil
}

// List возвращает все определения, отсортированные по имени.
func (r *Registry) List() []domain.JobDefinition {
	defs := make([]domain.JobDefinition, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.jobs[name].def)
	}
	return defs
}

// Len возвращает количество задач.
func (r *Registry) Len() int {
	return len(r.names)
}

// Next возвращает следующее время запуска задачи строго после from.
func (r *Registry) Next(name string, from time.Time) (time.Time, error) {
	e, ok := r.jobs[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e.schedule.Next(from), nil
}
