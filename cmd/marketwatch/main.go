// Command marketwatch continuously ingests EVE Online market data from ESI
// into Redis.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("marketwatch failed")
		os.Exit(1)
	}
}
