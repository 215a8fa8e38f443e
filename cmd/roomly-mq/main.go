// Roomly MQ CLI - инструмент оператора для очередей сообщений.
//
// Использование:
//
//	roomly-mq [--json] <command> [flags]
//
// Команды:
//
//	publish   Публикация сообщений
//	inspect   Состояние очередей
//	dlq       Dead-letter очередь
//	journal   Журнал полученных сообщений
//
// Параметры подключения берутся из тех же переменных окружения,
// что у roomly-producer и roomly-consumer.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Roomly/internal/cli"
	"github.com/shaiso/Roomly/internal/config"
	"github.com/shaiso/Roomly/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "roomly-mq",
		Short:         "Roomly MQ CLI - publish, inspect and replay messages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	var env *cli.Env
	envFn := func() *cli.Env {
		if env != nil {
			return env
		}
		cfg, err := config.Load()
		if err != nil {
			outputFn().Error(err.Error())
			os.Exit(1)
		}
		// Логи команд - в stderr, данные - в stdout
		cfg.Log.Format = "text"
		env = cli.NewEnv(cfg, telemetry.NewLogger(os.Stderr, cfg.Log))
		return env
	}

	rootCmd.AddCommand(
		cli.NewPublishCmd(envFn, outputFn),
		cli.NewInspectCmd(envFn, outputFn),
		cli.NewDLQCmd(envFn, outputFn),
		cli.NewJournalCmd(envFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		outputFn().Error(err.Error())
		os.Exit(1)
	}
}
