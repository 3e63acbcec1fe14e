package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/jamespfennell/gtfs"

	"buspulse.openmobility.org/internal/models"
)

// LoadGTFSStatic builds a Memory catalog from a static GTFS feed, mapping
// each scheduled trip to one Bus and its stop times to ordered Stops. The
// serviceDate anchors the feed's seconds-since-midnight stop times to
// concrete instants.
//
// Trips without stop times are skipped; a trip's first and last stops become
// the bus's origin and destination.
func LoadGTFSStatic(b []byte, serviceDate time.Time) (*Memory, error) {
	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}

	midnight := time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), 0, 0, 0, 0, serviceDate.Location())

	m := NewMemory()
	for i := range staticData.Trips {
		trip := &staticData.Trips[i]
		if len(trip.StopTimes) == 0 {
			continue
		}

		first := trip.StopTimes[0]
		last := trip.StopTimes[len(trip.StopTimes)-1]
		if first.Stop == nil || last.Stop == nil {
			continue
		}

		name := trip.Headsign
		if trip.Route != nil && trip.Route.ShortName != "" {
			name = trip.Route.ShortName
		}

		bus := models.Bus{
			ID:            models.BusID(trip.ID),
			Name:          name,
			Origin:        gtfsStopLocation(first.Stop),
			Destination:   gtfsStopLocation(last.Stop),
			DepartureTime: midnight.Add(first.DepartureTime),
			ArrivalTime:   midnight.Add(last.ArrivalTime),
		}
		m.AddBus(bus)

		for idx, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			stop := models.NewStop(
				models.StopID(fmt.Sprintf("%s_%s", trip.ID, st.Stop.Id)),
				bus.ID,
				gtfsStopLocation(st.Stop),
				midnight.Add(st.ArrivalTime),
				midnight.Add(st.DepartureTime),
				idx+1,
			)
			if err := m.AddStop(stop); err != nil {
				return nil, fmt.Errorf("trip %s: %w", trip.ID, err)
			}
		}
	}

	return m, nil
}

// LoadGTFSFile reads a GTFS zip from disk and builds a catalog from it.
func LoadGTFSFile(path string, serviceDate time.Time) (*Memory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS file: %w", err)
	}
	return LoadGTFSStatic(b, serviceDate)
}

func gtfsStopLocation(s *gtfs.Stop) models.Location {
	loc := models.Location{
		ID:   models.LocationID(s.Id),
		Name: s.Name,
	}
	if s.Latitude != nil {
		loc.Latitude = *s.Latitude
	}
	if s.Longitude != nil {
		loc.Longitude = *s.Longitude
	}
	return loc
}
