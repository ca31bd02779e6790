package main

import (
	"github.com/spf13/cobra"

	"deepresearch/internal/server/bootstrap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the research API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return bootstrap.RunServer(cmd.Context(), cfg, meta, version)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}
