package stats

import (
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/observability"
)

// Options carries the collaborators shared by the ingestion and aggregation types.
// Zero values are replaced with a real clock, nil metrics and the standard logger.
type Options struct {
	Clock   clockwork.Clock
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
