// speedscope inspects speedscope profile files from the command line.
//
// Usage:
//
//	speedscope <command> [flags] <file>
//
// Commands: info, frames, tree, callers, callees, flatten, export
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/getsentry/speedscope/internal/logutil"
)

func main() {
	logutil.ConfigureLogger(os.Getenv("LOG_LEVEL"))
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("speedscope failed")
		os.Exit(1)
	}
}
