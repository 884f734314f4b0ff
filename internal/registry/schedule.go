package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (5 полей + дескрипторы @hourly, @every 10m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule парсит выражение расписания.
//
// Поддерживаются:
//   - cron-выражения: "*/15 * * * *"
//   - дескрипторы: "@hourly", "@daily", "@every 10m"
//   - интервалы: "30m", "1h30m"
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	// Интервал без дескриптора.
	if d, err := time.ParseDuration(expr); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("interval %q is shorter than 1s", expr)
		}
		return cron.Every(d), nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched, nil
}
