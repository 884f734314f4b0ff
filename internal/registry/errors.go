package registry

import "errors"

var (
	// ErrJobNotFound — задачи с таким именем нет в реестре.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob — имя задачи уже занято.
	ErrDuplicateJob = errors.New("duplicate job name")

	// ErrUnknownHandler — в конфигурации указан незарегистрированный обработчик.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrInvalidJob — определение задачи некорректно.
	ErrInvalidJob = errors.New("invalid job definition")
)
