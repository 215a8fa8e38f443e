package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Roomly/internal/domain"
)

var journalHeaders = []string{"RECEIVED", "QUEUE", "MESSAGE ID", "REDELIVERED", "BODY"}

func journalRow(m *domain.ReceivedMessage) []string {
	return []string{
		m.ReceivedAt.Format(time.RFC3339),
		m.Queue,
		m.MessageID,
		strconv.FormatBool(m.Redelivered),
		m.Body,
	}
}

// NewJournalCmd создаёт группу команд для журнала полученных сообщений.
func NewJournalCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Browse the received message journal",
	}

	cmd.AddCommand(
		newJournalListCmd(envFn, outputFn),
		newJournalGetCmd(envFn, outputFn),
	)

	return cmd
}

func newJournalListCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var (
		queue string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently received messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			out := outputFn()

			journal, closeFn, err := env.Journal(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			messages, err := journal.ListRecent(cmd.Context(), queue, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(messages))
			for i := range messages {
				rows[i] = journalRow(&messages[i])
			}

			out.Print(journalHeaders, rows, messages)
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Filter by queue (default: all queues)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of messages to show")

	return cmd
}

func newJournalGetCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get <message-id>",
		Short: "Show a journal entry by AMQP message id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			out := outputFn()

			journal, closeFn, err := env.Journal(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			m, err := journal.GetByMessageID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("message %s: %w", args[0], err)
			}

			out.Print(journalHeaders, [][]string{journalRow(m)}, m)
			return nil
		},
	}
}
