// Package telemetry обеспечивает наблюдаемость утилит брокера.
//
// Включает:
//   - logging.go - structured logging через slog
//   - metrics.go - Prometheus метрики публикации и потребления
//   - middleware.go - логирование и recovery для HTTP endpoint'ов
//
// Consumer экспортирует метрики на /metrics endpoint.
package telemetry
