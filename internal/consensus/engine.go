// Package consensus fuses crowd-sourced rider GPS reports into per-bus
// position estimates with confidence scores, predicts upcoming stops, tracks
// rider sessions, and credits reward points. All state is in memory and
// sharded by bus, so concurrent reports for different buses never contend.
package consensus

import (
	"log/slog"
	"sync"
	"time"

	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/geo"
	"buspulse.openmobility.org/internal/logging"
	"buspulse.openmobility.org/internal/metrics"
	"buspulse.openmobility.org/internal/models"
)

// SnapshotPublisher receives each snapshot produced by an applied merge.
// Implementations must not block for long; publish failures are logged and
// otherwise ignored.
type SnapshotPublisher interface {
	PublishSnapshot(snapshot models.BusLocationSnapshot) error
}

// Engine is the facade the transport layer talks to. It wires the ingestor,
// aggregator, predictor, session tracker, and reward ledger together and owns
// the background eviction sweep.
type Engine struct {
	cfg       Config
	catalog   catalog.RouteCatalog
	logger    *slog.Logger
	ingestor  *Ingestor
	agg       *Aggregator
	predictor *StopPredictor
	sessions  *SessionTracker
	ledger    *RewardLedger
	collector *metrics.Collector
	publisher SnapshotPublisher
	now       func() time.Time

	distanceOverride geo.DistanceFunc

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithMetrics attaches a prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithPublisher attaches a snapshot publisher.
func WithPublisher(p SnapshotPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithDistance overrides the distance function. Tests use this to build fixed
// geometries; production uses the haversine default.
func WithDistance(fn geo.DistanceFunc) Option {
	return func(e *Engine) { e.distanceOverride = fn }
}

// WithClock overrides the wall clock for reads and sweeps.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// NewEngine creates the engine and starts its eviction sweeper. Call
// Shutdown to stop it.
func NewEngine(cfg Config, cat catalog.RouteCatalog, logger *slog.Logger, opts ...Option) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:          cfg,
		catalog:      cat,
		logger:       logger,
		ingestor:     NewIngestor(),
		sessions:     NewSessionTracker(),
		ledger:       NewRewardLedger(),
		now:          time.Now,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	distance := geo.DistanceFunc(geo.Haversine)
	if e.distanceOverride != nil {
		distance = e.distanceOverride
	}
	e.agg = NewAggregator(cfg, distance, logger)
	e.predictor = NewStopPredictor(cat, distance, cfg.StopProximityKM)

	e.wg.Add(1)
	go e.runSweeper()

	return e
}

// Shutdown stops the background sweeper. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		close(e.shutdownChan)
		e.wg.Wait()
	})
}

// ProcessLocationReport runs the full ingestion path for one report and
// returns the reporter's cumulative points. The only possible error is a
// *ValidationError for structurally malformed input; every other condition
// degrades gracefully.
func (e *Engine) ProcessLocationReport(report models.LocationReport) (models.RewardPoints, error) {
	if err := e.ingestor.Validate(report); err != nil {
		e.collector.ReportInc("rejected")
		return models.RewardPoints{}, err
	}

	if _, ok := e.catalog.FindBus(report.BusID); !ok {
		// Unknown bus is not a failure: the catalog may lag behind clients.
		// No state moves and no points are earned.
		e.collector.ReportInc("degraded")
		logging.LogOperation(e.logger, "report_for_unknown_bus",
			slog.String("bus_id", report.BusID.String()),
			slog.String("user_id", report.UserID.String()))
		return models.RewardPoints{
			UserID:      report.UserID,
			TotalPoints: e.ledger.Total(report.UserID),
		}, nil
	}

	start := time.Now()
	est, outcome := e.agg.Merge(report.BusID, report)
	e.collector.MergeObserve(time.Since(start))
	e.collector.ReportInc(outcome.String())

	if outcome == MergeApplied {
		e.predictor.Advance(report.BusID, report.Latitude, report.Longitude)
	}

	// Outliers and duplicates are still "seen": the rider is evidently on
	// the bus, so the session stays warm even though the estimate ignored
	// the fix.
	if opened := e.sessions.RecordReport(report.BusID, report.UserID, report.Timestamp, report.Latitude, report.Longitude); opened {
		e.collector.SessionOpenedInc()
		e.collector.SetOpenSessions(e.sessions.OpenSessionCount())
	}
	e.collector.SetActiveBuses(e.agg.ActiveBusCount())

	var total int64
	if outcome == MergeApplied {
		total = e.ledger.Award(report.UserID, e.cfg.BasePoints)
		e.collector.PointsAdd(e.cfg.BasePoints)
	} else {
		total = e.ledger.Total(report.UserID)
	}

	if e.publisher != nil && outcome == MergeApplied {
		snapshot := e.snapshotFromEstimate(report.BusID, est)
		if err := e.publisher.PublishSnapshot(snapshot); err != nil {
			logging.LogError(e.logger, "failed to publish snapshot", err,
				slog.String("bus_id", report.BusID.String()))
		}
	}

	return models.RewardPoints{UserID: report.UserID, TotalPoints: total}, nil
}

// ProcessDisembarkation closes the rider's open session, if any. It never
// fails: disembarking twice, or for a trip that was never tracked, is a
// no-op by design.
func (e *Engine) ProcessDisembarkation(busID models.BusID, userID models.UserID, endTime time.Time, endLocationID models.LocationID) {
	var endLocation *models.Location
	if loc, ok := e.catalog.FindLocation(endLocationID); ok {
		endLocation = &loc
	}

	if closed := e.sessions.Disembark(busID, userID, endTime, endLocation); closed {
		e.collector.SessionsClosedAdd("disembark", 1)
		e.collector.SetOpenSessions(e.sessions.OpenSessionCount())
		logging.LogOperation(e.logger, "session_closed",
			slog.String("bus_id", busID.String()),
			slog.String("user_id", userID.String()),
			slog.String("reason", "disembark"))
	}
}

// CurrentBusLocation returns the bus's snapshot. Unknown buses and buses with
// no accepted reports both yield a zero-confidence, zero-count snapshot.
func (e *Engine) CurrentBusLocation(busID models.BusID) models.BusLocationSnapshot {
	snapshot := models.BusLocationSnapshot{BusID: busID}
	if bus, ok := e.catalog.FindBus(busID); ok {
		snapshot.BusName = bus.Name
	}

	est, ok := e.agg.Snapshot(busID, e.now())
	if !ok {
		return snapshot
	}
	return e.fillSnapshot(snapshot, busID, est)
}

// BusLocationsOnRoute returns a snapshot for every bus scheduled between the
// two locations.
func (e *Engine) BusLocationsOnRoute(from, to models.LocationID) []models.BusLocationSnapshot {
	buses := e.catalog.FindBusesBetween(from, to)
	snapshots := make([]models.BusLocationSnapshot, 0, len(buses))
	for _, bus := range buses {
		snapshots = append(snapshots, e.CurrentBusLocation(bus.ID))
	}
	return snapshots
}

// UserRewardPoints returns the user's cumulative points; unknown users are at 0.
func (e *Engine) UserRewardPoints(userID models.UserID) models.RewardPoints {
	return models.RewardPoints{UserID: userID, TotalPoints: e.ledger.Total(userID)}
}

func (e *Engine) snapshotFromEstimate(busID models.BusID, est Estimate) models.BusLocationSnapshot {
	snapshot := models.BusLocationSnapshot{BusID: busID}
	if bus, ok := e.catalog.FindBus(busID); ok {
		snapshot.BusName = bus.Name
	}
	return e.fillSnapshot(snapshot, busID, est)
}

func (e *Engine) fillSnapshot(snapshot models.BusLocationSnapshot, busID models.BusID, est Estimate) models.BusLocationSnapshot {
	snapshot.Latitude = est.Latitude
	snapshot.Longitude = est.Longitude
	snapshot.ConfidenceScore = est.Confidence
	snapshot.ReportCount = est.ReportCount
	snapshot.DistinctUsers = est.DistinctUsers
	snapshot.LastUpdated = est.LastUpdated
	snapshot.NextStop = e.predictor.PredictNextStop(busID)
	return snapshot
}

func (e *Engine) runSweeper() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepOnce(e.now())
		case <-e.shutdownChan:
			logging.LogOperation(e.logger, "shutting_down_eviction_sweep")
			return
		}
	}
}

// sweepOnce evicts idle estimates and implicitly closes idle sessions. It is
// idempotent and safe to run concurrently with live ingestion.
func (e *Engine) sweepOnce(now time.Time) {
	evicted := e.agg.SweepIdle(now)
	for _, busID := range evicted {
		e.predictor.Reset(busID)
	}
	closed := e.sessions.CloseIdle(now, e.cfg.InactivityWindow)

	e.collector.EvictionsAdd(len(evicted))
	e.collector.SessionsClosedAdd("idle", len(closed))
	e.collector.SetActiveBuses(e.agg.ActiveBusCount())
	e.collector.SetOpenSessions(e.sessions.OpenSessionCount())

	if len(evicted) > 0 || len(closed) > 0 {
		logging.LogOperation(e.logger, "eviction_sweep",
			slog.Int("estimates_evicted", len(evicted)),
			slog.Int("sessions_closed", len(closed)))
	}
}
