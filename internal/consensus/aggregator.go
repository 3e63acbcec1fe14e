package consensus

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"buspulse.openmobility.org/internal/geo"
	"buspulse.openmobility.org/internal/logging"
	"buspulse.openmobility.org/internal/models"
)

// MergeOutcome describes what the aggregator did with one report.
type MergeOutcome int

const (
	// MergeApplied means the report moved the consensus estimate.
	MergeApplied MergeOutcome = iota
	// MergeDuplicate means the report was a retransmission of the user's
	// previous fix and was ignored.
	MergeDuplicate
	// MergeOutlier means the report implied physically implausible movement
	// and was kept out of the estimate.
	MergeOutlier
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeDuplicate:
		return "duplicate"
	case MergeOutlier:
		return "outlier"
	default:
		return "unknown"
	}
}

// Estimate is the fused position for one bus.
type Estimate struct {
	Latitude      float64
	Longitude     float64
	Confidence    float64
	ReportCount   int
	DistinctUsers int
	LastUpdated   time.Time
}

type sample struct {
	user     models.UserID
	lat      float64
	lon      float64
	accuracy float64
	ts       time.Time
}

// busState is all mutable state for one bus. Its mutex serializes merges for
// that bus only; reports for different buses never contend.
type busState struct {
	mu sync.Mutex

	samples []sample
	lat     float64
	lon     float64
	// base confidence from agreement and tightness; the recency factor is
	// applied at read time so confidence decays between reports without
	// anyone writing.
	baseConfidence float64
	reportCount    int
	lastUpdated    time.Time
	lastByUser     map[models.UserID]sample
}

// Aggregator owns the sharded per-bus consensus state. The outer map is
// guarded by a RWMutex with double-checked insertion; each bus then has its
// own lock, so throughput scales with the number of distinct buses.
type Aggregator struct {
	cfg      Config
	distance geo.DistanceFunc
	logger   *slog.Logger

	mu    sync.RWMutex
	buses map[models.BusID]*busState
}

// NewAggregator creates an aggregator with the given distance function.
func NewAggregator(cfg Config, distance geo.DistanceFunc, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		cfg:      cfg.withDefaults(),
		distance: distance,
		logger:   logger,
		buses:    make(map[models.BusID]*busState),
	}
}

func (a *Aggregator) stateFor(busID models.BusID) *busState {
	a.mu.RLock()
	state, ok := a.buses[busID]
	a.mu.RUnlock()
	if ok {
		return state
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if state, ok = a.buses[busID]; ok {
		return state
	}
	state = &busState{lastByUser: make(map[models.UserID]sample)}
	a.buses[busID] = state
	return state
}

// Merge folds one structurally valid report into the bus's estimate and
// returns the updated estimate. It never fails: duplicates and outliers leave
// the estimate untouched and report what happened through the outcome.
func (a *Aggregator) Merge(busID models.BusID, report models.LocationReport) (Estimate, MergeOutcome) {
	state := a.stateFor(busID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if prev, ok := state.lastByUser[report.UserID]; ok {
		if prev.ts.Equal(report.Timestamp) && prev.lat == report.Latitude && prev.lon == report.Longitude {
			return state.estimateAt(report.Timestamp, a.cfg), MergeDuplicate
		}
	}

	if state.reportCount > 0 {
		if outcome, impliedKPH := a.checkOutlier(state, report); outcome == MergeOutlier {
			logging.LogOperation(a.logger, "outlier_report_discarded",
				slog.String("bus_id", busID.String()),
				slog.String("user_id", report.UserID.String()),
				slog.Float64("implied_speed_kph", impliedKPH),
				slog.Float64("accuracy_m", report.AccuracyMeters))
			return state.estimateAt(report.Timestamp, a.cfg), MergeOutlier
		}
	}

	s := sample{
		user:     report.UserID,
		lat:      report.Latitude,
		lon:      report.Longitude,
		accuracy: report.AccuracyMeters,
		ts:       report.Timestamp,
	}
	state.samples = append(state.samples, s)
	state.lastByUser[report.UserID] = s
	state.reportCount++

	ref := report.Timestamp
	if state.lastUpdated.After(ref) {
		// Late-arriving report: keep the newer reference time so a delayed
		// retry cannot rewind the estimate's clock.
		ref = state.lastUpdated
	}
	state.lastUpdated = ref

	state.pruneSamples(ref, a.cfg.ReportWindow)
	state.refold(ref, a.cfg)

	return state.estimateAt(ref, a.cfg), MergeApplied
}

// checkOutlier computes the speed the report implies relative to the current
// estimate. Implausible speed alone is not enough to discard: the fix must
// also be poor, so a fleet of accurate phones can still move the estimate
// quickly after a gap.
func (a *Aggregator) checkOutlier(state *busState, report models.LocationReport) (MergeOutcome, float64) {
	elapsed := report.Timestamp.Sub(state.lastUpdated)
	if elapsed <= 0 {
		// Stale or reordered report: it cannot imply a speed, and the age
		// decay already makes it nearly weightless.
		return MergeApplied, 0
	}

	distKM := a.distance(state.lat, state.lon, report.Latitude, report.Longitude)
	impliedKPH := distKM / elapsed.Hours()

	if impliedKPH > a.cfg.MaxPlausibleSpeedKPH && report.AccuracyMeters > a.cfg.PoorAccuracyMeters {
		return MergeOutlier, impliedKPH
	}
	return MergeApplied, impliedKPH
}

// Snapshot returns the current estimate for a bus without mutating anything.
// The second return is false when the bus has no accepted reports.
func (a *Aggregator) Snapshot(busID models.BusID, now time.Time) (Estimate, bool) {
	a.mu.RLock()
	state, ok := a.buses[busID]
	a.mu.RUnlock()
	if !ok {
		return Estimate{}, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.reportCount == 0 {
		return Estimate{}, false
	}
	return state.estimateAt(now, a.cfg), true
}

// SweepIdle removes estimates idle past the inactivity window and returns the
// evicted bus IDs. Staleness is re-checked under each bus's own lock so a
// just-updated entry is never evicted.
func (a *Aggregator) SweepIdle(now time.Time) []models.BusID {
	a.mu.RLock()
	candidates := make(map[models.BusID]*busState)
	for id, state := range a.buses {
		candidates[id] = state
	}
	a.mu.RUnlock()

	var evicted []models.BusID
	for id, state := range candidates {
		state.mu.Lock()
		stale := now.Sub(state.lastUpdated) > a.cfg.InactivityWindow
		state.mu.Unlock()
		if !stale {
			continue
		}

		a.mu.Lock()
		// Re-check after taking the write lock; a merge may have landed in
		// between.
		if current, ok := a.buses[id]; ok && current == state {
			current.mu.Lock()
			if now.Sub(current.lastUpdated) > a.cfg.InactivityWindow {
				delete(a.buses, id)
				evicted = append(evicted, id)
			}
			current.mu.Unlock()
		}
		a.mu.Unlock()
	}
	return evicted
}

// ActiveBusCount reports how many buses currently hold state.
func (a *Aggregator) ActiveBusCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buses)
}

// pruneSamples drops samples that fell out of the trailing window. lastByUser
// entries are kept so duplicate detection survives pruning.
func (state *busState) pruneSamples(ref time.Time, window time.Duration) {
	kept := state.samples[:0]
	for _, s := range state.samples {
		if ref.Sub(s.ts) <= window {
			kept = append(kept, s)
		}
	}
	state.samples = kept
}

// refold recomputes the weighted mean position and the base confidence from
// the samples in the window. Weight favors accurate and recent fixes:
//
//	w = 1/(1+accuracy/30m) * exp(-age/decay)
func (state *busState) refold(ref time.Time, cfg Config) {
	if len(state.samples) == 0 {
		return
	}

	var sumW, sumLat, sumLon float64
	for _, s := range state.samples {
		w := sampleWeight(s, ref, cfg)
		sumW += w
		sumLat += w * s.lat
		sumLon += w * s.lon
	}
	if sumW <= 0 {
		return
	}
	state.lat = sumLat / sumW
	state.lon = sumLon / sumW

	// Agreement: more distinct riders in the window means more independent
	// confirmation. 1 user -> 0.39, 2 -> 0.63, 4 -> 0.86, asymptote 1.
	users := make(map[models.UserID]struct{}, len(state.samples))
	for _, s := range state.samples {
		users[s.user] = struct{}{}
	}
	agreement := 1 - math.Exp(-float64(len(users))/2)

	// Tightness: weighted mean scatter around the fused position, in
	// degrees of arc converted to an approximate kilometer scale. Low
	// variance means the riders agree on where the bus is.
	var sumDev float64
	for _, s := range state.samples {
		w := sampleWeight(s, ref, cfg)
		dLat := (s.lat - state.lat) * degreeKM
		dLon := (s.lon - state.lon) * degreeKM * math.Cos(state.lat*math.Pi/180)
		sumDev += w * math.Sqrt(dLat*dLat+dLon*dLon)
	}
	spreadKM := sumDev / sumW
	tightness := 1 / (1 + spreadKM/0.1)

	state.baseConfidence = clamp01(agreement * tightness)
}

// estimateAt renders the estimate at a point in time, applying the recency
// decay to the stored base confidence.
func (state *busState) estimateAt(now time.Time, cfg Config) Estimate {
	// Samples are pruned on merge, so a read long after the last merge
	// filters by age instead of counting everything still held.
	users := make(map[models.UserID]struct{}, len(state.samples))
	for _, s := range state.samples {
		if now.Sub(s.ts) > cfg.ReportWindow {
			continue
		}
		users[s.user] = struct{}{}
	}

	confidence := state.baseConfidence
	if age := now.Sub(state.lastUpdated); age > 0 {
		confidence *= math.Exp(-3 * float64(age) / float64(cfg.InactivityWindow))
	}

	return Estimate{
		Latitude:      state.lat,
		Longitude:     state.lon,
		Confidence:    clamp01(confidence),
		ReportCount:   state.reportCount,
		DistinctUsers: len(users),
		LastUpdated:   state.lastUpdated,
	}
}

// degreeKM approximates one degree of latitude in kilometers.
const degreeKM = 111.0

func sampleWeight(s sample, ref time.Time, cfg Config) float64 {
	age := ref.Sub(s.ts)
	if age < 0 {
		age = 0
	}
	accuracyW := 1 / (1 + s.accuracy/30)
	recencyW := math.Exp(-float64(age) / float64(cfg.WeightDecay))
	return accuracyW * recencyW
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
