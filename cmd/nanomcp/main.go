// Command nanomcp serves the sample tools over stdio with the nanomcp
// protocol engine.
package main

import (
	"fmt"
	"os"

	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp", "nanomcp")

// Set via ldflags at build time.
var version = "dev"

func main() {
	// stdout carries the protocol, logs go to stderr
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nanomcp",
		Short:        "Tool-calling protocol server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file, yaml or json")
	cmd.PersistentFlags().String("log-level", "", "Overrides the configured log level")

	cmd.Version = version
	cmd.SetVersionTemplate(fmt.Sprintf("nanomcp version %s\n", version))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newToolsCmd())
	return cmd
}
