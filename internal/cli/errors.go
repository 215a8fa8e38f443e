package cli

import "errors"

// Ошибки CLI.
var (
	// ErrJournalDisabled - журнал не настроен (DB_URL пуст).
	ErrJournalDisabled = errors.New("journal is disabled: set DB_URL")

	// ErrInvalidLimit - отрицательный --limit.
	ErrInvalidLimit = errors.New("limit must not be negative")
)
