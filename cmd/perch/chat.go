package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/perchlabs/perch/internal/chat/history"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(flags, sessionKey)
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "main", "session key to chat on")
	return cmd
}

func runChat(flags *rootFlags, sessionKey string) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cfg, log, sessionKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.start()
	defer a.stop()

	fmt.Fprintf(os.Stderr, "Connecting to %s...\n", cfg.Gateway.URL)
	if err := a.waitReady(ctx); err != nil {
		return fmt.Errorf("interrupted while connecting: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Connected. Session %q. Ctrl-D to exit.\n", sessionKey)

	printTranscript(a, sessionKey)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return inputLoop(ctx, a, sessionKey)
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// printTranscript fetches and prints the stored transcript before the
// interactive loop starts.
func printTranscript(a *app, sessionKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := a.client.History(ctx, protocol.ChatHistoryParams{
		SessionKey: sessionKey,
		Limit:      20,
	})
	if err != nil {
		a.log.WithError(err).Warn("could not fetch transcript")
		return
	}
	for _, m := range result.Messages {
		fmt.Printf("%s: %s\n", m.Role, m.Content)
		_ = a.transcript.Append(ctx, sessionKey, history.Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: time.UnixMilli(m.Timestamp),
		})
	}
}

func inputLoop(ctx context.Context, a *app, sessionKey string) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/abort" {
			abortCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := a.client.AbortChat(abortCtx, protocol.ChatAbortParams{SessionKey: sessionKey})
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "abort failed: %v\n", err)
			}
			continue
		}

		_ = a.transcript.Append(ctx, sessionKey, history.Message{
			Role:    "user",
			Content: line,
		})
		a.chat.BeginTurn(sessionKey)
		a.tools.Reset()

		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := a.client.SendChat(sendCtx, protocol.ChatSendParams{
			SessionKey: sessionKey,
			Message:    line,
			IdemKey:    newIdemKey(),
		})
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}
