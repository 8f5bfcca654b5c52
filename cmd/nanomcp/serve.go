package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/callbacks"
	"github.com/effective-security/nanomcp/config"
	"github.com/effective-security/nanomcp/internal/sampletools"
	"github.com/effective-security/nanomcp/mcp"
	"github.com/effective-security/nanomcp/mcp/transport/streamtransport"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/nanomcp/tools"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sample tools on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Bool("trace", false, "Print tool calls and a session summary to stderr")
	cmd.Flags().Bool("verbose", false, "With --trace, also print arguments and results")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = strings.ToUpper(level)
		if err = cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	xlog.SetGlobalLogLevel(cfg.LogLevel())

	trace, _ := cmd.Flags().GetBool("trace")
	verbose, _ := cmd.Flags().GetBool("verbose")

	reg, err := registry.NewWith(sampletools.Tools...)
	if err != nil {
		return errors.WithMessage(err, "failed to load tools")
	}

	mode := callbacks.ModeDefault
	if verbose {
		mode = callbacks.ModeVerbose
	}
	pad := callbacks.NewScratchpad(mode)
	var cb tools.Callback = callbacks.NewFanout(callbacks.NewPackageLogger(logger), pad)
	if trace {
		cb = callbacks.NewFanout(cb, callbacks.NewPrinter(cmd.ErrOrStderr(), mode))
	}

	srv := mcp.NewServer(reg, mcp.WithOptions(cfg.Options()), mcp.WithCallback(cb))
	pad.StartRun(srv.SessionID())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := streamtransport.New(cmd.InOrStdin(), cmd.OutOrStdout(), nil)
	logger.KV(xlog.INFO, "status", "starting", "tools", reg.Len(), "fingerprint", reg.Fingerprint())

	err = srv.Serve(ctx, tr)

	stats, transcript := pad.EndRun(srv.SessionID())
	if trace {
		fmt.Fprint(cmd.ErrOrStderr(), string(transcript))
	}
	if stats != nil {
		logger.KV(xlog.INFO,
			"status", "stopped",
			"session", stats.SessionID,
			"calls", stats.ToolsCalls,
			"failed", stats.ToolsCallsFailed,
			"duration", stats.Duration.String(),
		)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
