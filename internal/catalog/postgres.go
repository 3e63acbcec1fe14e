package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"buspulse.openmobility.org/internal/models"
)

// LoadPostgres materializes a Memory catalog from the platform's reference
// tables. The surrounding CRUD system owns the schema; this loader only ever
// reads. All rows are pulled once at startup so catalog lookups stay free of
// I/O on the ingest path.
func LoadPostgres(ctx context.Context, dsn string) (*Memory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to reference database: %w", err)
	}
	defer pool.Close()

	m := NewMemory()

	locations := make(map[models.LocationID]models.Location)
	rows, err := pool.Query(ctx, `SELECT id, name, latitude, longitude FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("error querying locations: %w", err)
	}
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning location row: %w", err)
		}
		locations[loc.ID] = loc
		m.AddLocation(loc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading location rows: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, name, origin_location_id, destination_location_id, departure_time, arrival_time
		FROM buses`)
	if err != nil {
		return nil, fmt.Errorf("error querying buses: %w", err)
	}
	for rows.Next() {
		var bus models.Bus
		var originID, destinationID models.LocationID
		if err := rows.Scan(&bus.ID, &bus.Name, &originID, &destinationID, &bus.DepartureTime, &bus.ArrivalTime); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning bus row: %w", err)
		}
		bus.Origin = locations[originID]
		bus.Destination = locations[destinationID]
		m.AddBus(bus)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading bus rows: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, bus_id, location_id, scheduled_arrival, scheduled_departure, stop_order
		FROM stops
		ORDER BY bus_id, stop_order`)
	if err != nil {
		return nil, fmt.Errorf("error querying stops: %w", err)
	}
	for rows.Next() {
		var stop models.Stop
		var locationID models.LocationID
		if err := rows.Scan(&stop.ID, &stop.BusID, &locationID, &stop.ScheduledArrival, &stop.ScheduledDeparture, &stop.StopOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning stop row: %w", err)
		}
		stop.Location = locations[locationID]
		if err := m.AddStop(stop); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading stop rows: %w", err)
	}

	return m, nil
}
