package catalog

import (
	"fmt"
	"sort"

	"buspulse.openmobility.org/internal/models"
)

// Memory is the canonical RouteCatalog implementation: everything lives in
// maps built once at load time. The GTFS and Postgres loaders both produce a
// Memory catalog so no catalog lookup ever does I/O on the ingest path.
type Memory struct {
	buses     map[models.BusID]models.Bus
	stops     map[models.BusID][]models.Stop
	locations map[models.LocationID]models.Location
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		buses:     make(map[models.BusID]models.Bus),
		stops:     make(map[models.BusID][]models.Stop),
		locations: make(map[models.LocationID]models.Location),
	}
}

// AddLocation registers a location. Intended for load time and tests only;
// the catalog is not safe for writes concurrent with reads.
func (m *Memory) AddLocation(loc models.Location) {
	m.locations[loc.ID] = loc
}

// AddBus registers a bus and its origin/destination locations.
func (m *Memory) AddBus(bus models.Bus) {
	m.buses[bus.ID] = bus
	m.locations[bus.Origin.ID] = bus.Origin
	m.locations[bus.Destination.ID] = bus.Destination
}

// AddStop appends a stop to its bus's route, keeping the sequence ordered by
// StopOrder. Orders must be contiguous starting at 1; AddStop returns an
// error on a duplicate order so a misconfigured seed fails loudly at load
// time instead of producing silent mispredictions later.
func (m *Memory) AddStop(stop models.Stop) error {
	existing := m.stops[stop.BusID]
	for _, s := range existing {
		if s.StopOrder == stop.StopOrder {
			return fmt.Errorf("bus %s already has a stop with order %d", stop.BusID, stop.StopOrder)
		}
	}
	existing = append(existing, stop)
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].StopOrder < existing[j].StopOrder
	})
	m.stops[stop.BusID] = existing
	m.locations[stop.Location.ID] = stop.Location
	return nil
}

func (m *Memory) FindBus(id models.BusID) (models.Bus, bool) {
	bus, ok := m.buses[id]
	return bus, ok
}

func (m *Memory) FindStops(id models.BusID) []models.Stop {
	return m.stops[id]
}

func (m *Memory) FindBusesBetween(from, to models.LocationID) []models.Bus {
	var matches []models.Bus
	for _, bus := range m.buses {
		if bus.Origin.ID == from && bus.Destination.ID == to {
			matches = append(matches, bus)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

func (m *Memory) FindLocation(id models.LocationID) (models.Location, bool) {
	loc, ok := m.locations[id]
	return loc, ok
}

// BusCount reports how many buses are loaded. Used by startup logging.
func (m *Memory) BusCount() int {
	return len(m.buses)
}
