package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newIdemKey() string {
	return uuid.New().String()
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions visible to this client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(flags)
		},
	}
}

func runSessions(flags *rootFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cfg, log, "")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.start()
	defer a.stop()

	if err := a.waitReady(ctx); err != nil {
		return fmt.Errorf("could not reach gateway at %s: %w", cfg.Gateway.URL, err)
	}

	result, err := a.client.ListSessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tLABEL\tCHANNEL\tMESSAGES\tUPDATED")
	for _, s := range result.Sessions {
		updated := ""
		if s.UpdatedAt > 0 {
			updated = time.UnixMilli(s.UpdatedAt).Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Key, s.Label, s.Channel, s.MessageCount, updated)
	}
	return w.Flush()
}
