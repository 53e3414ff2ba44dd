// Package ipc provides the JSON-RPC control channel between the CLI and the
// daemon over a unix domain socket. The server wraps a daemon instance and
// the client offers typed wrappers for every exposed method.
package ipc
