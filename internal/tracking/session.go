package tracking

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
)

// EmitFunc receives events derived by a session. Emission happens while the
// session lock is held, so events for one staff member are always ordered.
type EmitFunc func(ev models.StatusEvent)

// Session is the live tracking record for one staff member. It consumes
// filtered samples, queries the boundary model, and derives status
// transitions. Status is never set directly from outside; it is derived
// solely from the last sample and the current boundary.
type Session struct {
	mu sync.Mutex

	staffID     int64
	name        string
	boundary    spatial.Boundary
	boundaryRaw json.RawMessage
	lastSample  *models.LocationSample
	status      models.Status

	emit EmitFunc
}

// NewSession creates a session in status Unknown. boundary may be nil when
// the staff member has no assigned area.
func NewSession(staffID int64, name string, boundary spatial.Boundary, boundaryRaw json.RawMessage, emit EmitFunc) *Session {
	if emit == nil {
		emit = func(models.StatusEvent) {}
	}
	return &Session{
		staffID:     staffID,
		name:        name,
		boundary:    boundary,
		boundaryRaw: boundaryRaw,
		status:      models.StatusUnknown,
		emit:        emit,
	}
}

// StaffID returns the staff identifier this session tracks
func (s *Session) StaffID() int64 {
	return s.staffID
}

// Status returns the current derived status
func (s *Session) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Apply processes an accepted sample. Samples older than the last accepted
// one are rejected with models.ErrStaleSample. At most one status transition
// event is emitted per sample; a position update event is always emitted on
// acceptance.
func (s *Session) Apply(sample models.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSample != nil && sample.Timestamp < s.lastSample.Timestamp {
		return models.ErrStaleSample
	}
	s.lastSample = &sample

	if s.boundary != nil {
		newStatus := models.StatusOutside
		if s.boundary.Contains(sample.Latitude, sample.Longitude) {
			newStatus = models.StatusInside
		}
		if newStatus != s.status {
			s.status = newStatus
			s.emit(s.transitionEventLocked(sample.Timestamp))
		}
	}

	s.emit(models.StatusEvent{
		Type:          models.EventPosition,
		StaffID:       s.staffID,
		Name:          s.name,
		Status:        s.status,
		Latitude:      sample.Latitude,
		Longitude:     sample.Longitude,
		LowConfidence: sample.LowConfidence,
		Timestamp:     sample.Timestamp,
	})

	return nil
}

// ReplaceBoundary atomically swaps the boundary snapshot and immediately
// re-evaluates the most recent sample against it. A boundary edit can flip
// the status without a new GPS sample; in that case a transition event is
// emitted here.
func (s *Session) ReplaceBoundary(boundary spatial.Boundary, boundaryRaw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.boundary = boundary
	s.boundaryRaw = boundaryRaw

	newStatus := models.StatusUnknown
	if boundary != nil && s.lastSample != nil {
		newStatus = models.StatusOutside
		if boundary.Contains(s.lastSample.Latitude, s.lastSample.Longitude) {
			newStatus = models.StatusInside
		}
	}

	if newStatus != s.status {
		s.status = newStatus
		s.emit(s.transitionEventLocked(time.Now().UnixMilli()))
	}
}

// MarkUnknown forces the status to Unknown and emits a transition event if
// that is a change. Used when the disconnect grace period expires, to signal
// staleness to supervisors.
func (s *Session) MarkUnknown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.StatusUnknown {
		return
	}
	s.status = models.StatusUnknown
	s.emit(s.transitionEventLocked(time.Now().UnixMilli()))
}

// Snapshot returns a status event describing the current session state,
// used to sync a supervisor that subscribes mid-session
func (s *Session) Snapshot() models.StatusEvent {
	var out models.StatusEvent
	s.ReplayTo(func(ev models.StatusEvent) { out = ev })
	return out
}

// ReplayTo hands the current state snapshot to fn while the session lock is
// held. Regular emission also happens under that lock, so every event emitted
// after ReplayTo returns is ordered behind the snapshot in fn's target. That
// makes it safe to sync a subscriber that is already receiving live events.
func (s *Session) ReplayTo(fn EmitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.transitionEventLocked(time.Now().UnixMilli())
	if s.lastSample != nil {
		ev.Timestamp = s.lastSample.Timestamp
	}
	fn(ev)
}

// transitionEventLocked builds a status event from current state.
// Caller must hold s.mu.
func (s *Session) transitionEventLocked(ts int64) models.StatusEvent {
	ev := models.StatusEvent{
		Type:      models.EventStatus,
		StaffID:   s.staffID,
		Name:      s.name,
		Status:    s.status,
		Boundary:  s.boundaryRaw,
		Timestamp: ts,
	}
	if s.lastSample != nil {
		ev.Latitude = s.lastSample.Latitude
		ev.Longitude = s.lastSample.Longitude
		ev.LowConfidence = s.lastSample.LowConfidence
	}
	return ev
}
