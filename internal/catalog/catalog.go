// Package catalog provides read-only access to the bus, stop, and location
// reference data owned by the surrounding platform. The consensus engine only
// depends on the RouteCatalog interface; the concrete data can come from an
// in-memory seed, a static GTFS feed, or the platform's Postgres tables.
package catalog

import "buspulse.openmobility.org/internal/models"

// RouteCatalog is the narrow read interface the consensus engine consumes.
// Implementations must be safe for concurrent readers and must never perform
// I/O per call: reference data is immutable for the life of the process, so
// loaders materialize it up front.
type RouteCatalog interface {
	// FindBus returns the bus for the given ID, or false when unknown.
	FindBus(id models.BusID) (models.Bus, bool)

	// FindStops returns the bus's stops ordered by StopOrder. Empty when the
	// bus is unknown or has no stops configured.
	FindStops(id models.BusID) []models.Stop

	// FindBusesBetween returns every bus whose origin matches from and whose
	// destination matches to.
	FindBusesBetween(from, to models.LocationID) []models.Bus

	// FindLocation returns the location for the given ID, or false when unknown.
	FindLocation(id models.LocationID) (models.Location, bool)
}
