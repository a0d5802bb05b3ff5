package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/pacedsend/internal/app"
	"github.com/LeventeLantos/pacedsend/internal/queue"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Inspect and edit the recipient list",
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the normalized recipient list with its indices",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := queue.NewFileQueue(cfg.Recipients.File, cfg.Recipients.Normalize)
		entries, err := q.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, e := range entries {
			if e == "" {
				e = "(empty)"
			}
			fmt.Fprintf(out, "%4d  %s\n", i, e)
		}
		fmt.Fprintf(out, "%d recipients\n", len(entries))
		return nil
	},
}

var recipientsRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove one recipient, keeping the saved progress aligned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("index must be an integer: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			removed, err := a.RemoveRecipient(ctx, index)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", removed)
			return nil
		})
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or reset the saved progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved cursor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cur, total, err := a.Progress(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date:       %s\n", cur.DateStamp)
			fmt.Fprintf(out, "Next:       %d/%d\n", cur.LastIndex, total)
			fmt.Fprintf(out, "Sent today: %d\n", len(cur.SentRecipients))
			return nil
		})
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start the list over from the first recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.ResetProgress(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "progress reset")
			return nil
		})
	},
}

func init() {
	recipientsCmd.AddCommand(recipientsListCmd, recipientsRemoveCmd)
	progressCmd.AddCommand(progressShowCmd, progressResetCmd)
}

// withApp opens the backends without connecting the chat client.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
