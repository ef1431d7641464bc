// Command ptymcpd is the thin external-collaborator binary around the
// PTY session core (spec.md §1): a serve subcommand speaking a
// line-delimited JSON tool protocol over stdio, and a list subcommand
// for human inspection of sessions sharing a log_dir.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
