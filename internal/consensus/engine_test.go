package consensus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/models"
)

type capturingPublisher struct {
	snapshots []models.BusLocationSnapshot
}

func (p *capturingPublisher) PublishSnapshot(s models.BusLocationSnapshot) error {
	p.snapshots = append(p.snapshots, s)
	return nil
}

// testClock is a settable wall clock for sweep and read-time decay tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, cat *catalog.Memory, opts ...Option) (*Engine, *testClock) {
	t.Helper()

	clock := &testClock{now: testBase}
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour // sweeps are driven explicitly in tests

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, WithClock(clock.Now))
	e := NewEngine(cfg, cat, logger, opts...)
	t.Cleanup(e.Shutdown)
	return e, clock
}

func TestProcessLocationReportAwardsPoints(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	var last models.RewardPoints
	for i := 0; i < 3; i++ {
		r := validReport()
		r.Timestamp = testBase.Add(time.Duration(i) * 30 * time.Second)
		r.Latitude = 6.90 + float64(i)*0.001

		points, err := e.ProcessLocationReport(r)
		require.NoError(t, err)
		assert.Greater(t, points.TotalPoints, last.TotalPoints)
		last = points
	}

	assert.Equal(t, int64(15), last.TotalPoints)
	assert.Equal(t, last.TotalPoints, e.UserRewardPoints("u1").TotalPoints)
}

func TestProcessLocationReportRejectsMalformedInput(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	r := validReport()
	r.Latitude = 95

	_, err := e.ProcessLocationReport(r)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lat")

	// Nothing moved: no points, no session, no estimate.
	assert.Equal(t, int64(0), e.UserRewardPoints("u1").TotalPoints)
	assert.Equal(t, 0, e.sessions.OpenSessionCount())
	assert.Zero(t, e.CurrentBusLocation("B1").ReportCount)
}

func TestProcessLocationReportUnknownBusDegrades(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	// Earn some points on a known bus first.
	r := validReport()
	r.Timestamp = testBase
	_, err := e.ProcessLocationReport(r)
	require.NoError(t, err)

	// A report for a bus the catalog has never heard of is accepted but inert:
	// no error, no points earned, no estimate created.
	unknown := validReport()
	unknown.BusID = "ghost-bus"
	unknown.Timestamp = testBase.Add(time.Minute)

	points, err := e.ProcessLocationReport(unknown)
	require.NoError(t, err)
	assert.Equal(t, int64(5), points.TotalPoints)

	snapshot := e.CurrentBusLocation("ghost-bus")
	assert.Zero(t, snapshot.ConfidenceScore)
	assert.Zero(t, snapshot.ReportCount)
}

func TestProcessLocationReportDuplicateEarnsNothing(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	r := validReport()
	r.Timestamp = testBase

	first, err := e.ProcessLocationReport(r)
	require.NoError(t, err)
	second, err := e.ProcessLocationReport(r)
	require.NoError(t, err)

	assert.Equal(t, first.TotalPoints, second.TotalPoints)
}

func TestMidRouteReportsPredictUpcomingStop(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	// u1 sees the bus at stop 1; two minutes later u2 sees it midway between
	// stops 1 and 2.
	atStop := validReport()
	atStop.Latitude = 6.95
	atStop.Timestamp = testBase
	_, err := e.ProcessLocationReport(atStop)
	require.NoError(t, err)

	midway := validReport()
	midway.UserID = "u2"
	midway.Latitude = 6.975
	midway.Timestamp = testBase.Add(2 * time.Minute)
	_, err = e.ProcessLocationReport(midway)
	require.NoError(t, err)

	snapshot := e.CurrentBusLocation("B1")
	assert.Equal(t, 2, snapshot.ReportCount)
	assert.Equal(t, 2, snapshot.DistinctUsers)
	assert.Greater(t, snapshot.Latitude, 6.95)
	assert.Less(t, snapshot.Latitude, 7.00)
	require.NotNil(t, snapshot.NextStop)
	assert.Equal(t, 2, snapshot.NextStop.StopOrder)
}

func TestNextStopPredictionSurvivesWindowTurnover(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	atStop := validReport()
	atStop.Latitude = 6.95
	atStop.Timestamp = testBase
	_, err := e.ProcessLocationReport(atStop)
	require.NoError(t, err)

	// Six minutes later the report that reached stop 1 has aged out of the
	// report window, but the bus is still live inside the inactivity window.
	// The reached stop must stay reached.
	midway := validReport()
	midway.UserID = "u2"
	midway.Latitude = 6.975
	midway.Timestamp = testBase.Add(6 * time.Minute)
	_, err = e.ProcessLocationReport(midway)
	require.NoError(t, err)

	snapshot := e.CurrentBusLocation("B1")
	require.NotNil(t, snapshot.NextStop)
	assert.Equal(t, 2, snapshot.NextStop.StopOrder)
}

func TestEvictionResetsStopProgress(t *testing.T) {
	e, clock := newTestEngine(t, lineRouteCatalog(t))

	atStop := validReport()
	atStop.Latitude = 6.95
	atStop.Timestamp = testBase
	_, err := e.ProcessLocationReport(atStop)
	require.NoError(t, err)

	clock.now = testBase.Add(11 * time.Minute)
	e.sweepOnce(clock.now)

	// A later trip on the same bus starts from the first stop again.
	fresh := validReport()
	fresh.Latitude = 6.90
	fresh.Timestamp = testBase.Add(12 * time.Minute)
	_, err = e.ProcessLocationReport(fresh)
	require.NoError(t, err)

	clock.now = testBase.Add(12 * time.Minute)
	snapshot := e.CurrentBusLocation("B1")
	require.NotNil(t, snapshot.NextStop)
	assert.Equal(t, 1, snapshot.NextStop.StopOrder)
}

func TestCurrentBusLocationForQuietBus(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	snapshot := e.CurrentBusLocation("B1")

	assert.Equal(t, models.BusID("B1"), snapshot.BusID)
	assert.Equal(t, "Fort Express", snapshot.BusName)
	assert.Zero(t, snapshot.ConfidenceScore)
	assert.Zero(t, snapshot.ReportCount)
	assert.Nil(t, snapshot.NextStop)
}

func TestBusLocationsOnRoute(t *testing.T) {
	cat := lineRouteCatalog(t)
	cat.AddBus(models.Bus{
		ID:          "B7",
		Name:        "Other Line",
		Origin:      models.Location{ID: "L3", Latitude: 6.0, Longitude: 80.0},
		Destination: models.Location{ID: "L4", Latitude: 6.5, Longitude: 80.2},
	})
	e, _ := newTestEngine(t, cat)

	r := validReport()
	r.Timestamp = testBase
	_, err := e.ProcessLocationReport(r)
	require.NoError(t, err)

	snapshots := e.BusLocationsOnRoute("L1", "L2")

	require.Len(t, snapshots, 1)
	assert.Equal(t, models.BusID("B1"), snapshots[0].BusID)
	assert.Equal(t, 1, snapshots[0].ReportCount)

	assert.Empty(t, e.BusLocationsOnRoute("L4", "L3"))
}

func TestProcessDisembarkationNeverFails(t *testing.T) {
	e, _ := newTestEngine(t, lineRouteCatalog(t))

	// No session yet.
	e.ProcessDisembarkation("B1", "u1", testBase, "L2")

	r := validReport()
	r.Timestamp = testBase
	_, err := e.ProcessLocationReport(r)
	require.NoError(t, err)
	require.Equal(t, 1, e.sessions.OpenSessionCount())

	end := testBase.Add(30 * time.Minute)
	e.ProcessDisembarkation("B1", "u1", end, "L2")
	assert.Equal(t, 0, e.sessions.OpenSessionCount())

	// Again, and with an unknown location for good measure.
	e.ProcessDisembarkation("B1", "u1", end, "L2")
	e.ProcessDisembarkation("B1", "u1", end, "nowhere")
	assert.Equal(t, 0, e.sessions.OpenSessionCount())
}

func TestSweepEvictsIdleBusAndClosesSessions(t *testing.T) {
	e, clock := newTestEngine(t, lineRouteCatalog(t))

	r := validReport()
	r.Timestamp = testBase
	_, err := e.ProcessLocationReport(r)
	require.NoError(t, err)

	// Just inside the window: nothing happens.
	clock.now = testBase.Add(9 * time.Minute)
	e.sweepOnce(clock.now)
	assert.Equal(t, 1, e.agg.ActiveBusCount())
	assert.Equal(t, 1, e.sessions.OpenSessionCount())

	// Past the window: the estimate is evicted and the session implicitly
	// closed.
	clock.now = testBase.Add(11 * time.Minute)
	e.sweepOnce(clock.now)
	assert.Equal(t, 0, e.agg.ActiveBusCount())
	assert.Equal(t, 0, e.sessions.OpenSessionCount())

	snapshot := e.CurrentBusLocation("B1")
	assert.Zero(t, snapshot.ConfidenceScore)
	assert.Zero(t, snapshot.ReportCount)
}

func TestAppliedMergesArePublished(t *testing.T) {
	pub := &capturingPublisher{}
	e, _ := newTestEngine(t, lineRouteCatalog(t), WithPublisher(pub))

	r := validReport()
	r.Timestamp = testBase
	_, err := e.ProcessLocationReport(r)
	require.NoError(t, err)

	// Duplicate and unknown-bus reports must not publish.
	_, err = e.ProcessLocationReport(r)
	require.NoError(t, err)
	unknown := validReport()
	unknown.BusID = "ghost-bus"
	unknown.Timestamp = testBase.Add(time.Minute)
	_, err = e.ProcessLocationReport(unknown)
	require.NoError(t, err)

	require.Len(t, pub.snapshots, 1)
	assert.Equal(t, models.BusID("B1"), pub.snapshots[0].BusID)
	assert.Equal(t, 1, pub.snapshots[0].ReportCount)
}
