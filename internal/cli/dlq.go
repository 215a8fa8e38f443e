package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Roomly/internal/mq"
)

// NewDLQCmd создаёт группу команд для dead-letter очереди.
func NewDLQCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage dead-lettered messages",
	}

	cmd.AddCommand(newDLQReplayCmd(envFn, outputFn))

	return cmd
}

func newDLQReplayCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Move dead letters back to the main queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return ErrInvalidLimit
			}

			env := envFn()
			out := outputFn()
			topology := env.Topology()

			var replayed int
			err := env.WithConnection(func(conn *mq.Connection) error {
				n, err := mq.ReplayDeadLetters(cmd.Context(), conn, topology, limit, env.logger())
				replayed = n
				return err
			})
			if err != nil {
				return err
			}

			out.Result(
				fmt.Sprintf("Replayed %d message(s) from %s to %s", replayed, topology.DeadLetter, topology.Queue),
				map[string]any{"from": topology.DeadLetter, "to": topology.Queue, "replayed": replayed},
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages to replay (0 = all)")

	return cmd
}
