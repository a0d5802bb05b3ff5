package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/LeventeLantos/pacedsend/internal/app"
	"github.com/LeventeLantos/pacedsend/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect, send one paced session and exit",
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Info().Msg("waiting for the chat client to become ready")
	if err := a.Conn.WaitReady(ctx); err != nil {
		return fmt.Errorf("chat client never became ready: %w", err)
	}

	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("interrupt received, stopping run")
		a.Scheduler.Stop()
	case <-waitDone(a):
	}

	res, ok := a.Scheduler.LastResult()
	if !ok {
		return nil
	}
	printResult(cmd, res, a.Scheduler.Progress().Total)
	if err := a.Scheduler.LastError(); err != nil {
		return err
	}
	if res.State == session.Aborted {
		return fmt.Errorf("run aborted: %s", res.Reason)
	}
	return nil
}

func waitDone(a *app.App) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		_ = a.Scheduler.Wait(context.Background())
	}()
	return ch
}

func printResult(cmd *cobra.Command, res session.Result, queueLen int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s %s (%s)\n", res.RunID, res.State, res.Reason)
	fmt.Fprintf(out, "  Sent:    %d\n", res.Stats.Sent)
	fmt.Fprintf(out, "  Skipped: %d\n", res.Stats.Skipped)
	fmt.Fprintf(out, "  Errors:  %d\n", res.Stats.Errored)
	fmt.Fprintf(out, "  Cursor:  %d/%d\n", res.Cursor.LastIndex, queueLen)
	fmt.Fprintf(out, "  Elapsed: %s\n", res.EndedAt.Sub(res.StartedAt).Round(time.Second))
}
