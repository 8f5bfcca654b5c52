package compiler

import (
	"context"
	"go/ast"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"golang.org/x/tools/go/packages"
)

// Config of a compilation
type Config struct {
	// Dir is the directory the patterns are resolved in
	Dir string
	// Patterns are go/packages patterns, "." by default
	Patterns []string
	// Table is the name of the generated variable
	Table string
	// Output is the generated file name in the package directory
	Output string
	// BuildTags are passed to the build system
	BuildTags []string
}

func (c *Config) output() string {
	if c.Output == "" {
		return DefaultOutput
	}
	return c.Output
}

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedImports |
	packages.NeedDeps

// Load type-checks the packages and compiles their tool declarations.
// The previously generated output file is ignored.
func Load(ctx context.Context, cfg Config) ([]*Package, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	pcfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     cfg.Dir,
	}
	if len(cfg.BuildTags) > 0 {
		pcfg.BuildFlags = []string{"-tags=" + strings.Join(cfg.BuildTags, ",")}
	}

	list, err := packages.Load(pcfg, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load packages")
	}
	if len(list) == 0 {
		return nil, errors.Errorf("no packages match %v", patterns)
	}

	var (
		res   []*Package
		diags Diagnostics
	)
	for _, p := range list {
		broken := false
		for _, perr := range p.Errors {
			if isOutputError(perr, cfg.output()) {
				continue
			}
			diags = append(diags, Diagnostic{Msg: perr.Error()})
			broken = true
		}
		if broken {
			continue
		}

		var files []*ast.File
		for _, f := range p.Syntax {
			if filepath.Base(p.Fset.Position(f.Package).Filename) == cfg.output() {
				continue
			}
			files = append(files, f)
		}

		pkg, err := Analyze(p.Fset, files, p.Types)
		if err != nil {
			var d Diagnostics
			if errors.As(err, &d) {
				diags = append(diags, d...)
				continue
			}
			return nil, err
		}
		if len(p.GoFiles) > 0 {
			pkg.Dir = filepath.Dir(p.GoFiles[0])
		}
		res = append(res, pkg)
	}
	if err := diags.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// errors in the stale generated file are expected while regenerating
func isOutputError(err packages.Error, output string) bool {
	pos := err.Pos
	if pos == "" {
		// go list reports some positions in the message only
		pos = err.Msg
	}
	file, _, found := strings.Cut(pos, ":")
	return found && filepath.Base(strings.TrimSpace(file)) == output
}

// Run loads the packages and writes the generated file of every package
// that declares tools. It returns the compiled packages.
func Run(ctx context.Context, cfg Config) ([]*Package, error) {
	list, err := Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, pkg := range list {
		if len(pkg.Tools) == 0 {
			logger.KV(xlog.INFO, "package", pkg.Path, "status", "no_tools")
			continue
		}
		filename := filepath.Join(pkg.Dir, cfg.output())
		src, err := Generate(pkg, cfg.Table, filename)
		if err != nil {
			return nil, errors.WithMessagef(err, "package %s", pkg.Path)
		}
		if err = os.WriteFile(filename, src, 0o644); err != nil {
			return nil, errors.Wrapf(err, "failed to write %s", filename)
		}
		logger.KV(xlog.INFO, "package", pkg.Path, "tools", len(pkg.Tools), "file", filename)
	}
	return list, nil
}
