// Command rethinkconn is a thin CLI over the connection engine: connect
// to a server, run a single term, or stream terms from stdin.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("rethinkconn failed")
		os.Exit(exitCodeFor(err))
	}
}
