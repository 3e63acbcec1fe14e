package models

import "time"

// BusLocationSnapshot is the read-side view of one bus's consensus estimate.
// A snapshot for a bus with no accepted reports (or an unknown bus) carries a
// zero confidence score and a zero report count rather than an error, so the
// polling map UI never has to special-case catalog lag.
type BusLocationSnapshot struct {
	BusID           BusID     `json:"busId"`
	BusName         string    `json:"busName,omitempty"`
	Latitude        float64   `json:"lat"`
	Longitude       float64   `json:"lon"`
	ConfidenceScore float64   `json:"confidenceScore"`
	ReportCount     int       `json:"reportCount"`
	DistinctUsers   int       `json:"distinctUsers"`
	LastUpdated     time.Time `json:"lastUpdated,omitzero"`
	NextStop        *Stop     `json:"predictedNextStop,omitempty"`
}

// RewardPoints is a user's cumulative point total.
type RewardPoints struct {
	UserID      UserID `json:"userId"`
	TotalPoints int64  `json:"totalPoints"`
}
