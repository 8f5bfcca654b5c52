// Package tools defines the runtime tool definition: a schema bound to a
// dispatch thunk, the argument bag passed to thunks, execution callbacks and
// progress reporting. Definitions are normally emitted by nanomcpgen.
package tools
