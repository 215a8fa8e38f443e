package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Roomly/internal/mq"
)

// NewInspectCmd создаёт команду просмотра состояния очередей.
func NewInspectCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show message and consumer counts of the queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			out := outputFn()

			topology := env.Topology()
			queues := []mq.Queue{topology.Queue}
			if topology.DeadLetter != "" {
				queues = append(queues, topology.DeadLetter)
			}

			var stats []mq.QueueStats
			err := env.WithConnection(func(conn *mq.Connection) error {
				for _, q := range queues {
					s, err := mq.InspectQueue(cmd.Context(), conn, q)
					if err != nil {
						return err
					}
					stats = append(stats, s)
				}
				return nil
			})
			if err != nil {
				return err
			}

			headers := []string{"QUEUE", "MESSAGES", "CONSUMERS"}
			rows := make([][]string, len(stats))
			for i, s := range stats {
				rows[i] = []string{s.Name, strconv.Itoa(s.Messages), strconv.Itoa(s.Consumers)}
			}

			out.Print(headers, rows, stats)
			return nil
		},
	}
}
