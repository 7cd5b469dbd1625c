package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perchlabs/perch/internal/chat/history"
	"github.com/perchlabs/perch/internal/chat/stream"
	"github.com/perchlabs/perch/internal/chat/toolcalls"
	"github.com/perchlabs/perch/internal/common/config"
	"github.com/perchlabs/perch/internal/common/logger"
	"github.com/perchlabs/perch/internal/gateway/auth"
	"github.com/perchlabs/perch/internal/gateway/client"
	"github.com/perchlabs/perch/internal/gateway/identity"
	"github.com/perchlabs/perch/pkg/gateway/protocol"
)

// app wires the gateway client, the stream aggregators, and the transcript
// store behind the CLI commands.
type app struct {
	cfg *config.Config
	log *logger.Logger

	client     *client.Client
	chat       *stream.Aggregator
	tools      *toolcalls.Aggregator
	transcript *history.MemoryStore

	sessionKey string

	ready     chan struct{}
	readyOnce sync.Once

	// printed tracks how much of the streaming text is already on screen,
	// so each delta prints only its new suffix.
	printed int
}

func newApp(cfg *config.Config, log *logger.Logger, sessionKey string) (*app, error) {
	a := &app{
		cfg:        cfg,
		log:        log,
		tools:      toolcalls.NewAggregator(),
		transcript: history.NewMemoryStore(0),
		sessionKey: sessionKey,
		ready:      make(chan struct{}),
	}

	a.chat = stream.NewAggregator(log, stream.Callbacks{
		OnStreaming:      a.onStreaming,
		OnFinal:          a.onFinal,
		OnAborted:        a.onAborted,
		OnError:          a.onError,
		OnRefreshHistory: a.onRefreshHistory,
	})

	devices := identity.NewFileDeviceStore(filepath.Join(cfg.Identity.Dir, "device.json"))
	tokens := identity.NewFileTokenCache(filepath.Join(cfg.Identity.Dir, "tokens.json"))

	negotiator := auth.NewNegotiator(auth.Options{
		Role:          cfg.Gateway.Role,
		Scopes:        cfg.Gateway.Scopes,
		Token:         cfg.Gateway.Token,
		Password:      cfg.Gateway.Password,
		ClientVersion: Version,
		Platform:      runtime.GOOS,
		Mode:          protocol.ClientModeCLI,
		InstanceID:    uuid.New().String(),
		UserAgent:     "perch/" + Version,
		Locale:        os.Getenv("LANG"),
		Devices:       devices,
		Tokens:        tokens,
		Logger:        log,
	})

	a.client = client.NewClient(client.Options{
		URL:               cfg.Gateway.URL,
		ClientID:          cfg.Gateway.ClientID,
		ClientIDFallbacks: cfg.Gateway.ClientIDFallbacks,
		HandshakeDelay:    cfg.Gateway.HandshakeDelay(),
		BackoffInitial:    cfg.Gateway.BackoffInitial(),
		BackoffFactor:     cfg.Gateway.BackoffFactor,
		BackoffMax:        cfg.Gateway.BackoffMax(),
		Transport:         client.WebsocketTransport{},
		Auth:              negotiator,
		Logger:            log,
		Callbacks: client.Callbacks{
			OnHello: a.onHello,
			OnEvent: a.onEvent,
		},
	})
	return a, nil
}

func (a *app) start() {
	a.client.Start()
}

func (a *app) stop() {
	a.chat.Stop()
	a.client.Stop()
}

// waitReady blocks until the first successful handshake or context
// cancellation.
func (a *app) waitReady(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) onHello(hello *protocol.HelloOk) {
	if hello.Server != nil {
		a.log.Info("connected to gateway",
			zap.String("serverVersion", hello.Server.Version),
			zap.String("connId", hello.Server.ConnID))
	}
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *app) onEvent(frame *protocol.Frame) {
	switch frame.Event {
	case protocol.EventChat:
		payload := protocol.DecodeRawPayload(frame.Payload)
		a.chat.HandleChatEvent(payload)
		a.tools.Observe(payload)
	case protocol.EventAgent:
		payload := protocol.DecodeRawPayload(frame.Payload)
		a.chat.HandleAgentEvent(payload)
		a.tools.Observe(payload)
	case protocol.EventShutdown:
		var p protocol.ShutdownPayload
		_ = frame.ParsePayload(&p)
		a.log.Warn("gateway shutting down",
			zap.String("reason", p.Reason),
			zap.Int("restartExpectedMs", p.RestartExpectedMs))
	}
}

func (a *app) onStreaming(sessionKey, runID, text string) {
	if len(text) > a.printed {
		fmt.Print(text[a.printed:])
		a.printed = len(text)
	}
}

func (a *app) onFinal(sessionKey, runID, text string) {
	if len(text) > a.printed {
		fmt.Print(text[a.printed:])
	}
	fmt.Println()
	a.printed = 0

	_ = a.transcript.Append(context.Background(), sessionKey, history.Message{
		Role:    "assistant",
		Content: text,
	})
	a.printToolSummary()
}

func (a *app) onAborted(sessionKey, runID string) {
	a.printed = 0
	fmt.Println("\n[aborted]")
}

func (a *app) onError(sessionKey, runID, message string) {
	a.printed = 0
	if message == "" {
		message = "run failed"
	}
	fmt.Printf("\n[error] %s\n", message)
}

// onRefreshHistory re-fetches the transcript when a run ended without any
// streamed text and prints the latest assistant entry.
func (a *app) onRefreshHistory(sessionKey string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := a.client.History(ctx, protocol.ChatHistoryParams{SessionKey: sessionKey})
		if err != nil {
			a.log.WithError(err).Warn("history refresh failed")
			return
		}
		msgs := make([]history.Message, 0, len(result.Messages))
		for _, m := range result.Messages {
			msgs = append(msgs, history.Message{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: time.UnixMilli(m.Timestamp),
			})
		}
		_ = a.transcript.Replace(ctx, sessionKey, msgs)

		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == "assistant" {
				fmt.Println(msgs[i].Content)
				return
			}
		}
	}()
}

func (a *app) printToolSummary() {
	items := a.tools.Items()
	if len(items) == 0 {
		return
	}
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = item.ID
		}
		fmt.Printf("  [tool] %s (%s)\n", name, item.Status)
	}
}
