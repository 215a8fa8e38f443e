package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound - запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidLimit - лимит выборки вне допустимого диапазона.
	ErrInvalidLimit = errors.New("invalid limit")
)
