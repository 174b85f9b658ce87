package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/assistme/internal/chatlog"
)

func newLogsCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Review or prune the chat log",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "chat log DSN (defaults to CHATLOG_DSN)")

	open := func() (*chatlog.SQLWriter, error) {
		d := dsn
		if d == "" {
			d = getenv("CHATLOG_DSN")
		}
		if d == "" {
			return nil, errors.New("no chat log configured: pass --dsn or set CHATLOG_DSN")
		}
		return chatlog.Open(d)
	}

	cmd.AddCommand(newLogsListCmd(open), newLogsPruneCmd(open))
	return cmd
}

func newLogsListCmd(open func() (*chatlog.SQLWriter, error)) *cobra.Command {
	var q chatlog.Query
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chat log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			res, err := store.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Data) == 0 {
				fmt.Fprintln(out, "No entries found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSTAGE\tSESSION\tSOURCE\tMODEL\tPROMPT\tANSWER\tERROR")
			for _, e := range res.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"), e.Stage, e.SessionID, e.Source, e.Model,
					e.PromptChars, e.AnswerChars, e.ErrorMessage)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d entries\n", len(res.Data), res.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum entries")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "entries to skip")
	cmd.Flags().StringVar(&q.Stage, "stage", "", "filter by stage (after_request, on_error)")
	cmd.Flags().StringVar(&q.SessionID, "session", "", "filter by session id")
	cmd.Flags().StringVar(&q.Source, "source", "", "filter by answer source")
	return cmd
}

func newLogsPruneCmd(open func() (*chatlog.SQLWriter, error)) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete chat log entries older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			before := time.Now().Add(-olderThan)
			n, err := store.Delete(cmd.Context(), chatlog.MaintenanceQuery{Before: &before})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries older than %s\n", n, before.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}
