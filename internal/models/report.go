package models

import "time"

// LocationReport is a single GPS fix submitted by a rider's app. Reports are
// ephemeral: they are consumed by the consensus engine immediately and never
// persisted beyond the aggregation window.
//
// The validate tags express the structural constraints checked at the ingest
// boundary; anything that fails them is rejected before it can touch shared
// state.
type LocationReport struct {
	BusID          BusID     `json:"busId" validate:"required"`
	UserID         UserID    `json:"userId" validate:"required"`
	Latitude       float64   `json:"lat" validate:"gte=-90,lte=90"`
	Longitude      float64   `json:"lon" validate:"gte=-180,lte=180"`
	SpeedKPH       float64   `json:"speed" validate:"gte=0"`
	Heading        float64   `json:"heading" validate:"gte=0,lte=360"`
	AccuracyMeters float64   `json:"accuracy" validate:"gte=0"`
	Timestamp      time.Time `json:"timestamp"`
}
