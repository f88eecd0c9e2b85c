// Package reconciler maintains the supervisor-side visual state of the
// dashboard map: one marker and at most one boundary shape per staff member,
// kept consistent by applying relay events idempotently.
package reconciler

import (
	"context"
	"log"
	"sync"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
)

// Marker is the visual handle for a staff member's last known position
type Marker struct {
	Name          string
	Status        models.Status
	Latitude      float64
	Longitude     float64
	LowConfidence bool
}

// Shape is the visual handle for a staff member's boundary
type Shape struct {
	Boundary spatial.Boundary
}

// AlertFunc is invoked when a staff member transitions to Outside
type AlertFunc func(staffID int64, name string)

// View holds the keyed visual state for one supervisor. The store is private
// to the view; each viewer owns its own instance, nothing is shared.
type View struct {
	mu      sync.Mutex
	markers map[int64]Marker
	shapes  map[int64]Shape

	// badBoundary records staff whose boundary payload failed to parse,
	// so the failure is reported once and not on every replayed event
	badBoundary map[int64]bool

	onAlert AlertFunc
}

// NewView creates an empty supervisor view. alert may be nil.
func NewView(alert AlertFunc) *View {
	return &View{
		markers:     make(map[int64]Marker),
		shapes:      make(map[int64]Shape),
		badBoundary: make(map[int64]bool),
		onAlert:     alert,
	}
}

// Apply upserts the visual state for one event. Applying the same event
// twice leaves the same visible state: markers and shapes are keyed by staff
// id and replaced, never accumulated.
func (v *View) Apply(ev models.StatusEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Type {
	case models.EventBoundaryRemoved:
		delete(v.shapes, ev.StaffID)
		delete(v.badBoundary, ev.StaffID)
		return

	case models.EventBoundaryUpdated:
		// boundary-only event: the marker is left untouched
		v.applyBoundaryLocked(ev)
		return

	case models.EventStatus:
		prev, had := v.markers[ev.StaffID]
		v.markers[ev.StaffID] = markerFrom(ev)
		if len(ev.Boundary) > 0 {
			v.applyBoundaryLocked(ev)
		}
		if ev.Status == models.StatusOutside && (!had || prev.Status != models.StatusOutside) && v.onAlert != nil {
			v.onAlert(ev.StaffID, ev.Name)
		}

	case models.EventPosition:
		v.markers[ev.StaffID] = markerFrom(ev)
	}
}

// Send lets a View be plugged directly into the relay fan-out as an
// event sink
func (v *View) Send(_ context.Context, ev models.StatusEvent) error {
	v.Apply(ev)
	return nil
}

// Marker returns the marker for a staff member, if present
func (v *View) Marker(staffID int64) (Marker, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markers[staffID]
	return m, ok
}

// Shape returns the boundary shape for a staff member, if present
func (v *View) Shape(staffID int64) (Shape, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.shapes[staffID]
	return s, ok
}

// MarkerCount returns the number of visible markers
func (v *View) MarkerCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.markers)
}

// ShapeCount returns the number of visible boundary shapes
func (v *View) ShapeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.shapes)
}

func (v *View) applyBoundaryLocked(ev models.StatusEvent) {
	boundary, err := spatial.ParseBoundary(ev.Boundary)
	if err != nil {
		// a malformed boundary must not crash rendering: skip drawing
		// it and report once
		if !v.badBoundary[ev.StaffID] {
			v.badBoundary[ev.StaffID] = true
			log.Printf("staff %d: skipping undrawable boundary: %v", ev.StaffID, err)
		}
		return
	}
	delete(v.badBoundary, ev.StaffID)
	if boundary == nil {
		delete(v.shapes, ev.StaffID)
		return
	}
	v.shapes[ev.StaffID] = Shape{Boundary: boundary}
}

func markerFrom(ev models.StatusEvent) Marker {
	return Marker{
		Name:          ev.Name,
		Status:        ev.Status,
		Latitude:      ev.Latitude,
		Longitude:     ev.Longitude,
		LowConfidence: ev.LowConfidence,
	}
}
