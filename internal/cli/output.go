package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает ответы API: таблицей или JSON (--json).
// Данные идут в stdout, пояснения в stderr.
type Output struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewOutput создаёт Output поверх заданных потоков.
func NewOutput(jsonMode bool, stdout, stderr io.Writer) *Output {
	return &Output{jsonMode: jsonMode, stdout: stdout, stderr: stderr}
}

// Notice пишет пояснение в stderr. В JSON-режиме тоже: stdout остаётся
// пригодным для jq.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.stderr, format+"\n", args...)
}

// Status печатает состояние планировщика: строку экземпляра и таблицу задач.
func (o *Output) Status(st *SchedulerStatus) error {
	if o.jsonMode {
		return o.encode(st)
	}

	o.Notice("instance %s: running=%t leader=%t", st.HolderID, st.Running, st.Leader)

	t := newTable("JOB", "SCHEDULE", "CONCURRENCY", "TIMEOUT", "NEXT", "RUNNING", "LAST")
	for _, j := range st.Jobs {
		last := "-"
		if j.LastRun != nil {
			last = j.LastRun.Status + " " + j.LastRun.StartedAt
		}
		t.add(j.Name, j.Schedule, j.Concurrency, j.Timeout, orDash(j.NextFireAt), strconv.Itoa(j.Running), last)
	}
	return t.render(o.stdout)
}

// Action печатает итог start/stop. changed и unchanged — сообщения
// для случаев, когда состояние изменилось и когда уже было таким.
func (o *Output) Action(res *SchedulerAction, changed, unchanged string) error {
	if o.jsonMode {
		return o.encode(res)
	}
	if res.Changed {
		o.Notice("%s", changed)
	} else {
		o.Notice("%s", unchanged)
	}
	return nil
}

// Run печатает один run.
func (o *Output) Run(run *RunResponse) error {
	if o.jsonMode {
		return o.encode(run)
	}
	return runTable(*run).render(o.stdout)
}

// Runs печатает список run'ов.
func (o *Output) Runs(runs []RunResponse) error {
	if o.jsonMode {
		return o.encode(runs)
	}
	if len(runs) == 0 {
		o.Notice("no runs")
		return nil
	}
	return runTable(runs...).render(o.stdout)
}

func (o *Output) encode(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTable(runs ...RunResponse) *table {
	t := newTable("ID", "JOB", "STATUS", "TRIGGER", "DRY_RUN", "STARTED", "DURATION", "ERROR")
	for _, r := range runs {
		t.add(
			r.ID,
			r.JobName,
			r.Status,
			r.Trigger,
			strconv.FormatBool(r.DryRun),
			r.StartedAt,
			strconv.FormatInt(r.DurationMs, 10)+"ms",
			orDash(r.Error),
		)
	}
	return t
}

// table — колонки, выровненные tabwriter, с подчёркнутой шапкой.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	rule := make([]string, len(t.header))
	for i, h := range t.header {
		rule[i] = strings.Repeat("-", len(h))
	}

	for _, line := range append([][]string{t.header, rule}, t.rows...) {
		if _, err := fmt.Fprintln(tw, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
