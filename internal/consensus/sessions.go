package consensus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"buspulse.openmobility.org/internal/models"
)

// TrackingSession is one rider's open reporting window on one bus trip. A
// session starts on the rider's first accepted report and ends exactly once,
// either by explicit disembarkation or by the inactivity sweep.
type TrackingSession struct {
	ID          uuid.UUID
	BusID       models.BusID
	UserID      models.UserID
	StartTime   time.Time
	EndTime     *time.Time
	EndLocation *models.Location

	lastSeen time.Time
	lastLat  float64
	lastLon  float64
}

type sessionKey struct {
	bus  models.BusID
	user models.UserID
}

// SessionTracker holds the open sessions. A (bus, user) pair has at most one
// open session; closing it removes it, so a later trip on the same bus opens
// a fresh session with a new ID.
type SessionTracker struct {
	mu   sync.Mutex
	open map[sessionKey]*TrackingSession
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{open: make(map[sessionKey]*TrackingSession)}
}

// RecordReport notes a seen report for the rider, opening a session on the
// first one. Returns true when a new session was opened.
func (t *SessionTracker) RecordReport(busID models.BusID, userID models.UserID, ts time.Time, lat, lon float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{bus: busID, user: userID}
	session, ok := t.open[key]
	if !ok {
		t.open[key] = &TrackingSession{
			ID:        uuid.New(),
			BusID:     busID,
			UserID:    userID,
			StartTime: ts,
			lastSeen:  ts,
			lastLat:   lat,
			lastLon:   lon,
		}
		return true
	}

	if ts.After(session.lastSeen) {
		session.lastSeen = ts
		session.lastLat = lat
		session.lastLon = lon
	}
	return false
}

// Disembark closes the rider's session with an explicit end time and
// location. Calling it for a session that never started, or one already
// closed, is a no-op; it returns true only when a session was actually
// closed. It never fails.
func (t *SessionTracker) Disembark(busID models.BusID, userID models.UserID, endTime time.Time, endLocation *models.Location) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{bus: busID, user: userID}
	session, ok := t.open[key]
	if !ok {
		return false
	}

	session.EndTime = &endTime
	session.EndLocation = endLocation
	delete(t.open, key)
	return true
}

// CloseIdle implicitly ends sessions with no reports inside the window. The
// end time is the last report time and the end location the last known
// position, which keeps implicit closes distinguishable from explicit
// disembarkations (no catalog location is attached).
func (t *SessionTracker) CloseIdle(now time.Time, window time.Duration) []TrackingSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	var closed []TrackingSession
	for key, session := range t.open {
		if now.Sub(session.lastSeen) <= window {
			continue
		}
		end := session.lastSeen
		session.EndTime = &end
		session.EndLocation = &models.Location{
			Latitude:  session.lastLat,
			Longitude: session.lastLon,
		}
		closed = append(closed, *session)
		delete(t.open, key)
	}
	return closed
}

// ActiveSession returns a copy of the rider's open session, if any.
func (t *SessionTracker) ActiveSession(busID models.BusID, userID models.UserID) (TrackingSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.open[sessionKey{bus: busID, user: userID}]
	if !ok {
		return TrackingSession{}, false
	}
	return *session, true
}

// OpenSessionCount reports how many sessions are currently open.
func (t *SessionTracker) OpenSessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
