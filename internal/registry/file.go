package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/wikiops/internal/domain"
)

// File — формат файла каталога задач.
//
//	jobs:
//	  - name: wiki-sync
//	    schedule: "*/15 * * * *"
//	    handler: wiki-sync
//	    concurrency: forbid
//	    timeout: 5m
type File struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// JobSpec — одна задача в файле каталога.
type JobSpec struct {
	Name        string `yaml:"name"`
	Schedule    string `yaml:"schedule"`
	Handler     string `yaml:"handler"`
	Concurrency string `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
}

// Load читает каталог из YAML и связывает задачи с обработчиками по имени.
// Если handler не указан, используется имя задачи.
func Load(r io.Reader, handlers map[string]domain.JobHandler) (*Registry, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode jobs file: %w", err)
	}

	defs := make([]domain.JobDefinition, 0, len(f.Jobs))
	for _, spec := range f.Jobs {
		def, err := spec.definition(handlers)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return New(defs...)
}

// LoadFile читает каталог из файла.
func LoadFile(path string, handlers map[string]domain.JobHandler) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return Load(bytes.NewReader(data), handlers)
}

func (s JobSpec) definition(handlers map[string]domain.JobHandler) (domain.JobDefinition, error) {
	handlerName := s.Handler
	if handlerName == "" {
		handlerName = s.Name
	}

	h, ok := handlers[handlerName]
	if !ok {
		return domain.JobDefinition{}, fmt.Errorf("%w: %q (job %s)", ErrUnknownHandler, handlerName, s.Name)
	}

	policy, err := domain.ParseConcurrencyPolicy(s.Concurrency)
	if err != nil {
		return domain.JobDefinition{}, fmt.Errorf("%w: job %s: %v", ErrInvalidJob, s.Name, err)
	}

	var timeout time.Duration
	if s.Timeout != "" {
		timeout, err = time.ParseDuration(s.Timeout)
		if err != nil {
			return domain.JobDefinition{}, fmt.Errorf("%w: job %s: timeout: %v", ErrInvalidJob, s.Name, err)
		}
	}

	return domain.JobDefinition{
		Name:        s.Name,
		Schedule:    s.Schedule,
		HandlerName: handlerName,
		Handler:     h,
		Concurrency: policy,
		Timeout:     timeout,
	}, nil
}
