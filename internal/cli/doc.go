// Package cli implements the forge command-line interface.
//
// Each Cobra command is a thin shell over the internal packages: the
// supervisor launches and owns runs, the query service answers read-only
// questions about session files, and the api and dashboard packages expose
// the same data over HTTP and in the terminal.
//
// # Command Structure
//
//	forge train <config.yaml>    - Run a trainer in the foreground
//	forge stop [session]         - Ask the owning forge process to stop a run
//	forge status [session]       - Show one session, or the current run
//	forge sessions               - List sessions newest first
//	forge history <session>      - Summary of a finished or running session
//	forge checkpoints <session>  - Best checkpoints by validation loss
//	forge logs <session>         - Tail the raw trainer output
//	forge watch                  - Live terminal dashboard
//	forge serve                  - HTTP API with an embedded supervisor
//	forge init                   - Write a starter .forge.yaml
//
// # Flag Handling
//
// Global flags (--config, --verbose, --no-color, --json) are defined on the
// root command. Read-only commands honor --json by wrapping their result in
// a JSONEnvelope; errors are wrapped the same way by Execute.
package cli
