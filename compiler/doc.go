// Package compiler turns annotated Go functions into a static table of tool
// definitions.
//
// A tool is a top-level function whose doc comment carries the
// //mcp:tool directive:
//
//	// Add returns the sum of two integers.
//	//
//	//mcp:tool name=add
//	//mcp:param a description="first addend"
//	func Add(ctx context.Context, a int, b int) (int, error)
//
// The compiler maps the parameter types to schema types with go/types and
// emits a Go file declaring the table and one dispatch thunk per tool.
// The thunk decodes every argument into its native type and calls the
// declaration directly, so no reflection is involved on the call path.
//
// All problems found in a package are reported together as Diagnostics,
// and no output is produced while any diagnostic exists.
package compiler
