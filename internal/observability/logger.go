package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger derives a logger from the global one tagged with the run id.
func RunLogger(runID string) zerolog.Logger {
	return log.Logger.With().Str("run_id", runID).Logger()
}
