package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalDesk/internal/di"
	"SignalDesk/internal/services/normalizer"
	"SignalDesk/pkg/config"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "signaldesk",
		Short:         "TradingView alert aggregation and decision service",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, scheduler and workers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(configPath)
			},
		},
		evaluateCmd(&configPath),
		configCmd(&configPath),
	)
	return root
}

func serve(path string) error {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return app.Run()
}

func evaluateCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "evaluate <symbol>",
		Short: "Run one rules evaluation and print the snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return err
			}
			o, err := di.InitializeOneshot(cfg)
			if err != nil {
				return err
			}
			defer o.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := o.Config.Load(ctx); err != nil {
				return err
			}
			ev, err := o.Evaluator.Evaluate(ctx, normalizer.NormalizeSymbol(args[0]))
			if err != nil {
				return err
			}

			out := struct {
				Rules    interface{} `json:"rules"`
				Written  bool        `json:"written"`
				Changed  bool        `json:"changed"`
				Previous string      `json:"previous,omitempty"`
			}{ev.Rules, ev.Written, ev.Changed, string(ev.Previous)}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "evaluation timeout")
	return cmd
}

func configCmd(configPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect the service configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return err
			}
			rc, err := cfg.RuntimeConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: env=%s store=%s ai=%s watchlist=%v threshold=%.2f\n",
				cfg.Environment, cfg.Store.Backend, cfg.AI.Provider, rc.WatchlistSymbols, rc.Threshold)
			return nil
		},
	})
	return cfgCmd
}
