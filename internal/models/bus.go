package models

import "time"

// Location is a named point on the map: a terminal, a halt, or any place a
// route can start or end. Immutable reference data owned by the catalog.
type Location struct {
	ID        LocationID `json:"id"`
	Name      string     `json:"name"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
}

// Bus is one scheduled service between two locations. Immutable reference
// data owned by the catalog.
type Bus struct {
	ID            BusID     `json:"id"`
	Name          string    `json:"name"`
	Origin        Location  `json:"origin"`
	Destination   Location  `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
}

// Stop is one scheduled halt along a bus's route. StopOrder is assigned
// explicitly by the caller at construction and must form a contiguous
// increasing sequence starting at 1 for each bus; there is no shared counter
// anywhere that hands out orders.
type Stop struct {
	ID                 StopID    `json:"id"`
	BusID              BusID     `json:"busId"`
	Location           Location  `json:"location"`
	ScheduledArrival   time.Time `json:"scheduledArrival"`
	ScheduledDeparture time.Time `json:"scheduledDeparture"`
	StopOrder          int       `json:"stopOrder"`
}

// NewStop builds a Stop with an explicit order.
func NewStop(id StopID, busID BusID, loc Location, arrival, departure time.Time, order int) Stop {
	return Stop{
		ID:                 id,
		BusID:              busID,
		Location:           loc,
		ScheduledArrival:   arrival,
		ScheduledDeparture: departure,
		StopOrder:          order,
	}
}
