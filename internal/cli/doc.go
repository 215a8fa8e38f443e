// Package cli реализует инструмент командной строки roomly-mq.
//
// # Обзор
//
// CLI - утилита оператора для очередей сообщений Roomly. Подключается
// к брокеру напрямую, с теми же переменными окружения, что producer
// и consumer (config.Load).
//
// # Ключевые компоненты
//
// ## Env
//
// Общие зависимости команд: конфигурация, логгер, опции соединения
// и доступ к журналу. Каждая команда открывает соединение на время
// выполнения (mq.WithConnection) и закрывает его на любом пути выхода.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) - по умолчанию
//   - JSON - с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) - в stderr.
// Это позволяет использовать pipe: roomly-mq inspect --json | jq .
//
// ## Commands
//
//   - publish [TEXT...] - публикация сообщений {"text": ...} по порядку
//   - inspect - число сообщений и consumer'ов в очередях
//   - dlq replay - возврат сообщений из DLQ в основную очередь
//   - journal list - последние записи журнала (требует DB_URL)
//
// Каждая команда создаётся через фабричную функцию (NewPublishCmd и т.д.),
// принимающую envFn и outputFn - замыкания для ленивого создания
// Env и Output после парсинга PersistentFlags.
package cli
