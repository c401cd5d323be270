package domain

import "errors"

var (
	// ErrInvalidTimeOfDay — время правила не в формате HH:MM.
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	// ErrInvalidSchedule — у правила неизвестная частота или не задан нужный день.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidTimezone — часовой пояс не найден в базе IANA.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrTextGeneration — генерация текста завершилась ошибкой или таймаутом.
	ErrTextGeneration = errors.New("text generation failed")
	// ErrImageGeneration — генерация картинки завершилась ошибкой или таймаутом.
	ErrImageGeneration = errors.New("image generation failed")
	// ErrCommit — атомарная запись тика отклонена.
	ErrCommit = errors.New("tick commit failed")
	// ErrOrganizationNotFound — организация не найдена.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrLockBusy — организацию уже обрабатывает другой запуск.
	ErrLockBusy = errors.New("organization run already in progress")
)
