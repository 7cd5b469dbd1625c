package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perchlabs/perch/internal/common/config"
	"github.com/perchlabs/perch/internal/common/logger"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type rootFlags struct {
	configPath string
	url        string
	clientID   string
	token      string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "perch",
		Short:         "Chat client for the gateway protocol",
		Long:          "perch connects to a gateway over WebSocket, authenticates with a device identity, and streams assistant replies to the terminal.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "directory containing config.yaml")
	pf.StringVar(&flags.url, "url", "", "gateway WebSocket URL (overrides config)")
	pf.StringVar(&flags.clientID, "client-id", "", "client identifier (overrides config)")
	pf.StringVar(&flags.token, "token", "", "shared auth token (overrides config)")

	cmd.AddCommand(newChatCmd(flags))
	cmd.AddCommand(newSessionsCmd(flags))
	return cmd
}

// bootstrap loads config, applies flag overrides, and installs the logger.
func bootstrap(flags *rootFlags) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithPath(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.url != "" {
		cfg.Gateway.URL = flags.url
	}
	if flags.clientID != "" {
		cfg.Gateway.ClientID = flags.clientID
	}
	if flags.token != "" {
		cfg.Gateway.Token = flags.token
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, log, nil
}
