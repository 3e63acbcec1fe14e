package consensus

import (
	"sync"

	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/geo"
	"buspulse.openmobility.org/internal/models"
)

// StopPredictor tracks each bus's progress along its ordered stop sequence
// and derives the next scheduled stop from it. Progress is persistent and
// stepwise: only the next stop in order can be marked reached, and a reached
// stop stays reached until the bus's state is evicted. Persistence keeps the
// prediction stable after the samples that established it age out of the
// report window, and the stepwise rule keeps looping and out-and-back routes
// correct when several stops share coordinates.
type StopPredictor struct {
	catalog     catalog.RouteCatalog
	distance    geo.DistanceFunc
	proximityKM float64

	mu      sync.Mutex
	reached map[models.BusID]int // stops reached so far, counted in order
}

// NewStopPredictor creates a predictor with the given proximity threshold.
func NewStopPredictor(cat catalog.RouteCatalog, distance geo.DistanceFunc, proximityKM float64) *StopPredictor {
	return &StopPredictor{
		catalog:     cat,
		distance:    distance,
		proximityKM: proximityKM,
		reached:     make(map[models.BusID]int),
	}
}

// Advance folds one accepted report position into the bus's progress, marking
// consecutive upcoming stops reached while the position is within the
// proximity threshold. Progress never moves backwards.
func (p *StopPredictor) Advance(busID models.BusID, lat, lon float64) {
	stops := p.catalog.FindStops(busID)
	if len(stops) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.reached[busID]
	for cur < len(stops) {
		next := stops[cur]
		if p.distance(next.Location.Latitude, next.Location.Longitude, lat, lon) > p.proximityKM {
			break
		}
		cur++
	}
	if cur > 0 {
		p.reached[busID] = cur
	}
}

// PredictNextStop returns the next unreached stop for the bus. It returns nil
// when the bus has no configured stops or has reached its final stop. When no
// stop has been reached yet, the first stop is the prediction.
func (p *StopPredictor) PredictNextStop(busID models.BusID) *models.Stop {
	stops := p.catalog.FindStops(busID)
	if len(stops) == 0 {
		return nil
	}

	p.mu.Lock()
	cur := p.reached[busID]
	p.mu.Unlock()

	if cur >= len(stops) {
		return nil
	}
	next := stops[cur]
	return &next
}

// Reset clears the bus's recorded progress. Called when the bus's estimate is
// evicted, so a later trip on the same bus starts from the first stop again.
func (p *StopPredictor) Reset(busID models.BusID) {
	p.mu.Lock()
	delete(p.reached, busID)
	p.mu.Unlock()
}
