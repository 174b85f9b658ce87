package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/assistme"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := assistme.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := assistme.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Default model: %s\n", cfg.DefaultModel)
			fmt.Fprintf(out, "  Models:        %d openrouter, %d gemini\n", len(cfg.OpenRouter.Models), len(cfg.Gemini.Models))
			fmt.Fprintf(out, "  Rate limit:    %d req/%ds\n", cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)
			fmt.Fprintf(out, "  Sessions:      %s (history %d, expiry %ds)\n",
				cfg.Session.Backend, cfg.Session.MaxHistory, cfg.Session.ExpirySeconds)
			if cfg.Contact.Backend != assistme.ContactBackendNone {
				fmt.Fprintf(out, "  Contact:       %s\n", cfg.Contact.Backend)
			}

			if len(cfg.Plugins) > 0 {
				var names []string
				for _, p := range cfg.Plugins {
					status := "disabled"
					if p.Enabled {
						status = "enabled"
					}
					names = append(names, fmt.Sprintf("%s@%s (%s)", p.Name, p.Stage, status))
				}
				fmt.Fprintf(out, "  Plugins:       %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
