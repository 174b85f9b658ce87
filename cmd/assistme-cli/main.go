// Package main provides the assistme-cli command-line tool for checking
// configuration, talking to the assistant locally and reviewing chat logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/assistme/internal/version"
	"github.com/ferro-labs/assistme/plugin"

	// Register built-in plugins so they appear in the plugin list.
	_ "github.com/ferro-labs/assistme/internal/plugins/chatlog"
	_ "github.com/ferro-labs/assistme/internal/plugins/logger"
	_ "github.com/ferro-labs/assistme/internal/plugins/maxtoken"
	_ "github.com/ferro-labs/assistme/internal/plugins/wordfilter"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assistme-cli",
		Short:         "AssistMe command line tool",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newValidateCmd(),
		newPluginsCmd(),
		newVersionCmd(),
		newAskCmd(),
		newLogsCmd(),
	)
	return root
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all registered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			names := plugin.RegisteredPlugins()
			if len(names) == 0 {
				fmt.Fprintln(out, "No plugins registered.")
				return nil
			}
			fmt.Fprintln(out, "Registered plugins:")
			for _, name := range names {
				factory, _ := plugin.GetFactory(name)
				fmt.Fprintf(out, "  %-20s type=%s\n", name, factory().Type())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assistme-cli %s (api %s)\n", version.String(), version.APIVersion)
		},
	}
}
