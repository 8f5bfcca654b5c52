package compiler

import (
	"fmt"
	"go/token"
	"sort"
	"strings"
)

// Diagnostic is a problem found in the scanned source
type Diagnostic struct {
	Pos token.Position
	Msg string
}

func (d Diagnostic) String() string {
	if !d.Pos.IsValid() {
		return d.Msg
	}
	return d.Pos.String() + ": " + d.Msg
}

// Diagnostics is the list of problems of a compilation, it is returned as
// the error of a failed compilation
type Diagnostics []Diagnostic

func (d Diagnostics) Error() string {
	lines := make([]string, len(d))
	for i, diag := range d {
		lines[i] = diag.String()
	}
	return strings.Join(lines, "\n")
}

// Err returns the sorted diagnostics as an error, or nil if there are none
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	sort.SliceStable(d, func(i, j int) bool {
		a, b := d[i].Pos, d[j].Pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return d
}

type reporter struct {
	fset  *token.FileSet
	diags Diagnostics
}

func (r *reporter) errorf(pos token.Pos, format string, args ...any) {
	var p token.Position
	if r.fset != nil && pos.IsValid() {
		p = r.fset.Position(pos)
	}
	r.diags = append(r.diags, Diagnostic{Pos: p, Msg: fmt.Sprintf(format, args...)})
}
