package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Roomly/internal/producer"
)

// NewPublishCmd создаёт команду публикации сообщений.
func NewPublishCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "publish [TEXT...]",
		Short: "Publish text messages to the queue",
		Long: `Publish one {"text": ...} message per argument, in order.
Without arguments the texts from PRODUCER_TEXTS are published.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			out := outputFn()

			opts, err := env.ConnOptions()
			if err != nil {
				return err
			}

			texts := args
			if len(texts) == 0 {
				texts = env.Config.Producer.Texts
			}

			topology := env.Topology()
			p := producer.New(producer.Config{
				URL:      env.Config.AMQP.URL(),
				Options:  opts,
				Topology: topology,
				Texts:    texts,
				Confirm:  confirm || env.Config.Producer.Confirm,
				Logger:   env.logger(),
			})

			if err := p.Run(cmd.Context()); err != nil {
				return err
			}

			out.Result(
				fmt.Sprintf("Published %d message(s) to %s", len(texts), topology.Queue),
				map[string]any{"queue": topology.Queue, "published": len(texts)},
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Wait for broker confirmation of each message")

	return cmd
}
