package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/config"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/forwarder"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/group"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/listener"
	"github.com/phi-labs-ltd/lambo-proxy/pkg/rules"
)

func newServeCmd() *cobra.Command {
	var portOverride int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the proxy listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if portOverride != 0 {
				cfg.ListenerPort = portOverride
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&portOverride, "addr", 0, "override listener_port from the config file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groups, err := group.BuildAll(ctx, cfg.Groups, cfg.SessionTTLMs, logger)
	if err != nil {
		return fmt.Errorf("building target groups: %w", err)
	}

	var ruleDefs []rules.Rule
	for _, r := range cfg.Rules {
		ruleDefs = append(ruleDefs, rules.Rule{
			PathPrefix: r.PathPrefix,
			Rewrite:    r.Rewrite,
			GroupName:  r.Group,
		})
	}
	matcher := rules.New(ruleDefs)

	fwd := forwarder.New(forwarder.Options{
		ConnectionTimeout:   time.Duration(cfg.ConnectionTimeoutMs) * time.Millisecond,
		ProxyHeadersEnabled: cfg.ProxyHeadersEnabled,
		ListenerPort:        cfg.ListenerPort,
	}, logger)

	handler := listener.New(matcher, groups, fwd, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenerPort),
		Handler: handler,
	}

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.ListenerPort).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectionTimeoutMs)*time.Millisecond)
	defer shutdownCancel()
	err = srv.Shutdown(shutdownCtx)

	for _, g := range groups {
		g.Shutdown()
	}

	return err
}

func printBanner(cfg *config.Config) {
	bold := color.New(color.FgCyan, color.Bold)
	bold.Printf("lambo\n")
	fmt.Printf("  listening on      :%d\n", cfg.ListenerPort)
	fmt.Printf("  groups configured %d\n", len(cfg.Groups))
	for _, g := range cfg.Groups {
		fmt.Printf("    - %s (%s, %d endpoint(s))\n", g.Name, g.Policy, len(g.Endpoints))
	}
}
