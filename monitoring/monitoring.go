// Package monitoring is the error-observability seam. Reporters are
// fire-and-forget: they never fail and never block the caller.
package monitoring

import (
	"github.com/rs/zerolog/log"
)

type Reporter interface {
	ReportException(err error)
}

// LogReporter writes reported exceptions to the process log. Stands in for
// an external error tracker in deployments that do not run one.
type LogReporter struct{}

func (reporter *LogReporter) ReportException(err error) {
	if err == nil {
		return
	}

	log.Error().Err(err).Msg("Reported exception")
}
