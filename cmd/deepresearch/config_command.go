package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"deepresearch/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if meta.ConfigFile != "" {
				fmt.Fprintf(out, "# file: %s\n", meta.ConfigFile)
			}
			for _, key := range meta.EnvKeys {
				fmt.Fprintf(out, "# env: %s\n", key)
			}
			encoder := yaml.NewEncoder(out)
			encoder.SetIndent(2)
			defer encoder.Close()
			return encoder.Encode(maskSecrets(cfg))
		},
	})
	return cmd
}

func maskSecrets(cfg config.Config) config.Config {
	cfg.LLM.APIKey = maskSecret(cfg.LLM.APIKey)
	cfg.Search.TavilyAPIKey = maskSecret(cfg.Search.TavilyAPIKey)
	return cfg
}

func maskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:3] + "****" + secret[len(secret)-4:]
	}
}
