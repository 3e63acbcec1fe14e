package consensus

import "time"

// Config holds the tunables for the consensus engine. Zero values are
// replaced with the defaults below so callers only set what they care about.
type Config struct {
	// InactivityWindow is how long a bus keeps its estimate (and riders keep
	// their sessions) without any new report before eviction.
	InactivityWindow time.Duration

	// SweepInterval is how often the background eviction sweep runs.
	SweepInterval time.Duration

	// ReportWindow is the trailing window of samples that contribute to the
	// weighted average and the confidence score.
	ReportWindow time.Duration

	// WeightDecay is the time constant for the exponential age decay of a
	// sample's weight. Older reports lose influence without being deleted.
	WeightDecay time.Duration

	// MaxPlausibleSpeedKPH is the generous ceiling on the speed implied by a
	// report relative to the prior estimate. Above it, and with accuracy
	// worse than PoorAccuracyMeters, the report is discarded as an outlier.
	MaxPlausibleSpeedKPH float64

	// PoorAccuracyMeters marks a report's GPS accuracy as untrustworthy.
	PoorAccuracyMeters float64

	// StopProximityKM is how close an accepted report must be to a stop for
	// that stop to count as reached.
	StopProximityKM float64

	// BasePoints is the reward for each accepted, non-duplicate report.
	BasePoints int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		InactivityWindow:     10 * time.Minute,
		SweepInterval:        time.Minute,
		ReportWindow:         5 * time.Minute,
		WeightDecay:          90 * time.Second,
		MaxPlausibleSpeedKPH: 160,
		PoorAccuracyMeters:   100,
		StopProximityKM:      0.15,
		BasePoints:           5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InactivityWindow <= 0 {
		c.InactivityWindow = def.InactivityWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ReportWindow <= 0 {
		c.ReportWindow = def.ReportWindow
	}
	if c.WeightDecay <= 0 {
		c.WeightDecay = def.WeightDecay
	}
	if c.MaxPlausibleSpeedKPH <= 0 {
		c.MaxPlausibleSpeedKPH = def.MaxPlausibleSpeedKPH
	}
	if c.PoorAccuracyMeters <= 0 {
		c.PoorAccuracyMeters = def.PoorAccuracyMeters
	}
	if c.StopProximityKM <= 0 {
		c.StopProximityKM = def.StopProximityKM
	}
	if c.BasePoints <= 0 {
		c.BasePoints = def.BasePoints
	}
	return c
}
