// Command nanomcpgen compiles the //mcp:tool declarations of Go packages
// into static tool tables.
//
// Typical use is a go:generate directive in the package declaring tools:
//
//	//go:generate go run github.com/effective-security/nanomcp/cmd/nanomcpgen
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/compiler"
	"github.com/effective-security/nanomcp/encoding"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/nanomcp", "nanomcpgen")

// Set via ldflags at build time.
var version = "dev"

func main() {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	dir      string
	table    string
	output   string
	tags     []string
	manifest string
	examples uint64
	verbose  bool
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "nanomcpgen [packages]",
		Short: "Generate tool tables from //mcp:tool declarations",
		Long: "nanomcpgen type-checks the packages, validates their //mcp:tool and //mcp:param\n" +
			"markers and writes a Go file declaring the tool table of every package with tools.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o, args)
		},
	}
	cmd.Flags().StringVarP(&o.dir, "dir", "C", "", "Directory the package patterns are resolved in")
	cmd.Flags().StringVar(&o.table, "table", compiler.DefaultTable, "Name of the generated variable")
	cmd.Flags().StringVarP(&o.output, "output", "o", compiler.DefaultOutput, "Name of the generated file in each package directory")
	cmd.Flags().StringSliceVar(&o.tags, "tags", nil, "Build tags")
	cmd.Flags().StringVar(&o.manifest, "manifest", "", "Also write a manifest of the tools next to the generated file; the extension selects json, yaml, toml or txt")
	cmd.Flags().Uint64Var(&o.examples, "examples", 0, "Seed of the example arguments included in the manifest, 0 disables them")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func run(cmd *cobra.Command, o *options, patterns []string) error {
	if o.verbose {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	}

	list, err := compiler.Run(cmd.Context(), compiler.Config{
		Dir:       o.dir,
		Patterns:  patterns,
		Table:     o.table,
		Output:    o.output,
		BuildTags: o.tags,
	})
	if err != nil {
		var diags compiler.Diagnostics
		if errors.As(err, &diags) {
			for _, d := range diags {
				fmt.Fprintln(cmd.ErrOrStderr(), d.String())
			}
			return errors.Errorf("%d problem(s) found", len(diags))
		}
		return err
	}

	out := cmd.OutOrStdout()
	for _, pkg := range list {
		if len(pkg.Tools) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s: %d tool(s) in %s\n", pkg.Path, len(pkg.Tools), filepath.Join(pkg.Dir, o.output))
		if o.manifest != "" {
			if err = writeManifest(pkg, o); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeManifest(pkg *compiler.Package, o *options) error {
	var faker *gofakeit.Faker
	if o.examples != 0 {
		faker = gofakeit.New(o.examples)
	}
	m, err := encoding.NewManifest(pkg.Path, o.table, pkg.Schemas(), faker)
	if err != nil {
		return err
	}
	data, err := m.Marshal(encoding.ModeFromFilename(o.manifest))
	if err != nil {
		return err
	}

	filename := o.manifest
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(pkg.Dir, filename)
	}
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	if err = os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	logger.KV(xlog.INFO, "package", pkg.Path, "manifest", filename)
	return nil
}
