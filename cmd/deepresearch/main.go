package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	offline    bool
	server     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle(err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "deepresearch",
		Short: "Deep-research task orchestration server and client",
		Long: `deepresearch turns a research goal into a cited report.

A task is planned into sub-questions, each question is searched, claims are
extracted from the evidence and a report is drafted. Tasks run in the
background on the server; clients create them and poll the snapshot.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ./deepresearch.yaml or ~/.config/deepresearch/deepresearch.yaml)")
	flags.BoolVar(&opts.offline, "offline", false, "use the deterministic local adapters instead of remote APIs")
	flags.StringVar(&opts.server, "server", "", "server base URL for client commands (default http://localhost:<server.port>)")

	root.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newStatusCommand(opts),
		newListCommand(opts),
		newCancelCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// loadConfig resolves configuration for a command and configures logging.
func (o *rootOptions) loadConfig() (config.Config, config.Metadata, error) {
	var loadOpts []config.Option
	if o.configPath != "" {
		loadOpts = append(loadOpts, config.WithConfigPath(o.configPath))
	}
	if o.offline {
		loadOpts = append(loadOpts, config.WithOverrides(map[string]any{"pipeline.offline": true}))
	}
	cfg, meta, err := config.Load(loadOpts...)
	if err != nil {
		return config.Config{}, config.Metadata{}, err
	}
	logging.Configure(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
	})
	return cfg, meta, nil
}

func (o *rootOptions) serverURL(cfg config.Config) string {
	if o.server != "" {
		return o.server
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}
