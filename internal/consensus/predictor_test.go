package consensus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/geo"
	"buspulse.openmobility.org/internal/models"
)

// lineRouteCatalog seeds bus B1 running due north with stops S1..S3 roughly
// 5.5 km apart.
func lineRouteCatalog(t *testing.T) *catalog.Memory {
	t.Helper()

	cat := catalog.NewMemory()
	cat.AddBus(models.Bus{
		ID:          "B1",
		Name:        "Fort Express",
		Origin:      models.Location{ID: "L1", Name: "Fort", Latitude: 6.90, Longitude: 79.86},
		Destination: models.Location{ID: "L2", Name: "Gampaha", Latitude: 7.10, Longitude: 79.86},
	})

	coords := []float64{6.95, 7.00, 7.05}
	for i, lat := range coords {
		stop := models.NewStop(
			models.StopID(fmt.Sprintf("S%d", i+1)),
			"B1",
			models.Location{ID: models.LocationID(fmt.Sprintf("SL%d", i+1)), Latitude: lat, Longitude: 79.86},
			time.Time{}, time.Time{},
			i+1,
		)
		require.NoError(t, cat.AddStop(stop))
	}
	return cat
}

func newLinePredictor(t *testing.T) *StopPredictor {
	return NewStopPredictor(lineRouteCatalog(t), geo.Haversine, 0.15)
}

func TestPredictNextStopBeforeAnyStopReached(t *testing.T) {
	p := newLinePredictor(t)

	// Bus is near the origin, well away from every stop.
	p.Advance("B1", 6.90, 79.86)

	next := p.PredictNextStop("B1")
	require.NotNil(t, next)
	assert.Equal(t, 1, next.StopOrder)
}

func TestPredictNextStopAfterFirstStop(t *testing.T) {
	p := newLinePredictor(t)

	p.Advance("B1", 6.9501, 79.86) // within 150 m of stop 1

	next := p.PredictNextStop("B1")
	require.NotNil(t, next)
	assert.Equal(t, 2, next.StopOrder)
}

func TestPredictNextStopPastFinalStop(t *testing.T) {
	p := newLinePredictor(t)

	p.Advance("B1", 6.95, 79.86)
	p.Advance("B1", 7.00, 79.86)
	p.Advance("B1", 7.05, 79.86)

	assert.Nil(t, p.PredictNextStop("B1"))
}

func TestPredictNextStopNoConfiguredStops(t *testing.T) {
	cat := catalog.NewMemory()
	cat.AddBus(models.Bus{ID: "B9", Origin: models.Location{ID: "L1"}, Destination: models.Location{ID: "L2"}})
	p := NewStopPredictor(cat, geo.Haversine, 0.15)

	p.Advance("B9", 6.90, 79.86)
	assert.Nil(t, p.PredictNextStop("B9"))
}

func TestPredictNextStopNeverRegresses(t *testing.T) {
	p := newLinePredictor(t)

	p.Advance("B1", 6.95, 79.86)

	// Noisy GPS places the bus back at the already-reached stop. The
	// prediction must not move backwards.
	p.Advance("B1", 6.9501, 79.86)

	next := p.PredictNextStop("B1")
	require.NotNil(t, next)
	assert.Equal(t, 2, next.StopOrder)
}

func TestAdvanceIsStepwise(t *testing.T) {
	p := newLinePredictor(t)

	// A fix near stop 2 before stop 1 was ever reached does not skip ahead;
	// only the next stop in order can become reached.
	p.Advance("B1", 7.00, 79.86)

	next := p.PredictNextStop("B1")
	require.NotNil(t, next)
	assert.Equal(t, 1, next.StopOrder)
}

func TestPredictNextStopOutAndBackRoute(t *testing.T) {
	// An out-and-back route revisits the same coordinates with different stop
	// orders. Reaching the outbound stop must not mark the co-located return
	// stop reached too.
	cat := catalog.NewMemory()
	cat.AddBus(models.Bus{
		ID:          "B2",
		Origin:      models.Location{ID: "L1", Latitude: 6.90, Longitude: 79.86},
		Destination: models.Location{ID: "L1", Latitude: 6.90, Longitude: 79.86},
	})
	mk := func(id string, lat float64, order int) models.Stop {
		return models.NewStop(models.StopID(id), "B2",
			models.Location{ID: models.LocationID("loc-" + id), Latitude: lat, Longitude: 79.86},
			time.Time{}, time.Time{}, order)
	}
	require.NoError(t, cat.AddStop(mk("out-1", 6.95, 1)))
	require.NoError(t, cat.AddStop(mk("turn", 7.00, 2)))
	require.NoError(t, cat.AddStop(mk("back-1", 6.95, 3)))

	p := NewStopPredictor(cat, geo.Haversine, 0.15)

	p.Advance("B2", 6.95, 79.86)
	next := p.PredictNextStop("B2")
	require.NotNil(t, next)
	assert.Equal(t, 2, next.StopOrder)

	p.Advance("B2", 7.00, 79.86)
	next = p.PredictNextStop("B2")
	require.NotNil(t, next)
	assert.Equal(t, 3, next.StopOrder)
	assert.Equal(t, models.StopID("back-1"), next.ID)

	// Back at the shared coordinates: now it is the return stop that counts.
	p.Advance("B2", 6.95, 79.86)
	assert.Nil(t, p.PredictNextStop("B2"))
}

func TestResetClearsProgress(t *testing.T) {
	p := newLinePredictor(t)

	p.Advance("B1", 6.95, 79.86)
	p.Reset("B1")

	next := p.PredictNextStop("B1")
	require.NotNil(t, next)
	assert.Equal(t, 1, next.StopOrder)
}
