package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sameehj/strava-mcp/pkg/app"
	"github.com/sameehj/strava-mcp/pkg/config"
	"github.com/sameehj/strava-mcp/pkg/env"
	"github.com/sameehj/strava-mcp/pkg/logging"
	"github.com/sameehj/strava-mcp/pkg/stravatools"
	"github.com/sameehj/strava-mcp/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	var overrides config.Overrides

	serve := serveCmd(&cfgFile, &overrides)
	root := &cobra.Command{
		Use:           "strava-mcp",
		Short:         "Strava MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, YAML or TOML (default: ~/.strava-mcp/config.yaml)")
	overrides.BindFlags(root.PersistentFlags())

	root.AddCommand(serve)
	root.AddCommand(toolsCmd())
	root.AddCommand(versionCmd())
	return root
}

func loadConfig(cfgFile string, overrides *config.Overrides) (*config.Config, error) {
	if err := env.LoadDefault(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	overrides.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd(cfgFile *string, overrides *config.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio, or streamable HTTP with --http",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgFile, overrides)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer server.Close()
			return server.Run(ctx)
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTools(cmd.OutOrStdout())
		},
	}
}

func printTools(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, d := range stravatools.Descriptors(nil, stravatools.Options{}) {
		fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
	}
	return w.Flush()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
