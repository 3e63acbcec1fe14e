package app

import (
	"log/slog"

	"buspulse.openmobility.org/internal/appconf"
	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/consensus"
	"buspulse.openmobility.org/internal/metrics"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config    appconf.Config
	Logger    *slog.Logger
	Engine    *consensus.Engine
	Catalog   catalog.RouteCatalog
	Collector *metrics.Collector
}
