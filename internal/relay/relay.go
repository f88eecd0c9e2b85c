package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
	"github.com/fieldtrack/geofence-backend-go/internal/tracking"
)

// DefaultDisconnectGrace is how long a disconnected staff session is kept
// before it is dropped and its status reported as Unknown
const DefaultDisconnectGrace = 30 * time.Second

// StaffDirectory is the storage collaborator the relay loads staff records
// from on registration
type StaffDirectory interface {
	GetStaff(ctx context.Context, staffID int64) (*models.Staff, error)
}

// Options configures a Relay
type Options struct {
	// DisconnectGrace is the delay before a disconnected staff session is
	// dropped; zero means DefaultDisconnectGrace
	DisconnectGrace time.Duration
	// QueueLimit bounds each subscriber's event queue; zero means
	// DefaultQueueLimit
	QueueLimit int
	// LowAccuracyMeters is the sample filter's low-confidence threshold
	LowAccuracyMeters float64
}

// RegisterResult is returned to a staff client on successful registration
// so it can render its own assigned area
type RegisterResult struct {
	StaffID  int64           `json:"staffId"`
	Name     string          `json:"name"`
	Status   models.Status   `json:"status"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
}

// staffEntry pairs a tracking session with its live connection state
type staffEntry struct {
	session    *tracking.Session
	connID     uuid.UUID
	connected  bool
	graceTimer *time.Timer
}

// Relay is the real-time coordination point: it maps staff identifiers to
// their live session, drives the tracking state machine from incoming
// samples, and fans out status and position updates to subscribed
// supervisor views.
type Relay struct {
	store  StaffDirectory
	filter tracking.Filter
	grace  time.Duration
	limit  int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[int64]*staffEntry
	conns    map[uuid.UUID]int64 // staff connection -> staff id

	subMu sync.RWMutex
	subs  map[uuid.UUID]*subscriber
}

// New creates a Relay backed by the given staff directory
func New(store StaffDirectory, opts Options) *Relay {
	grace := opts.DisconnectGrace
	if grace <= 0 {
		grace = DefaultDisconnectGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		store:    store,
		filter:   tracking.Filter{LowAccuracyMeters: opts.LowAccuracyMeters},
		grace:    grace,
		limit:    opts.QueueLimit,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[int64]*staffEntry),
		conns:    make(map[uuid.UUID]int64),
		subs:     make(map[uuid.UUID]*subscriber),
	}
}

// Register loads the staff record, creates or supersedes the staff session,
// and returns the boundary snapshot for the caller to render. A session
// surviving a reconnect within the grace period keeps its last sample and
// status.
func (r *Relay) Register(ctx context.Context, staffID int64, connID uuid.UUID) (*RegisterResult, error) {
	staff, err := r.store.GetStaff(ctx, staffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, models.ErrUnknownStaff) {
			return nil, models.ErrUnknownStaff
		}
		return nil, err
	}

	boundary, err := spatial.ParseBoundary(staff.Boundary)
	boundaryRaw := staff.Boundary
	if err != nil {
		// a malformed stored boundary must not block registration;
		// track with no boundary until the editor fixes it
		log.Printf("staff %d: stored boundary rejected: %v", staffID, err)
		boundary, boundaryRaw = nil, nil
	}

	r.mu.Lock()
	// a connection re-registering as a different staff member detaches its
	// previous session first, so that session still expires normally
	if prevID, bound := r.conns[connID]; bound && prevID != staffID {
		delete(r.conns, connID)
		if prev, live := r.sessions[prevID]; live && prev.connID == connID {
			prev.connected = false
			prev.graceTimer = time.AfterFunc(r.grace, func() {
				r.expireSession(prevID, connID)
			})
		}
	}

	entry, ok := r.sessions[staffID]
	if ok {
		// new registration supersedes the old connection
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
			entry.graceTimer = nil
		}
		delete(r.conns, entry.connID)
	} else {
		entry = &staffEntry{
			session: tracking.NewSession(staffID, staff.FullName(), boundary, boundaryRaw, r.publish),
		}
		r.sessions[staffID] = entry
	}
	entry.connID = connID
	entry.connected = true
	r.conns[connID] = staffID
	session := entry.session
	r.mu.Unlock()

	return &RegisterResult{
		StaffID:  staffID,
		Name:     staff.FullName(),
		Status:   session.Status(),
		Boundary: boundaryRaw,
	}, nil
}

// SubmitSample runs the filter and the session state machine for one raw
// sample. The sample is attributed by connection, not staff id: a superseded
// or unregistered connection cannot drive a session. Filter rejections are
// returned so the staff device can surface them locally; stale samples are
// dropped silently. Fan-out toward supervisors never blocks the caller.
func (r *Relay) SubmitSample(connID uuid.UUID, raw models.RawSample) error {
	r.mu.RLock()
	staffID, bound := r.conns[connID]
	var entry *staffEntry
	if bound {
		entry = r.sessions[staffID]
	}
	r.mu.RUnlock()
	if entry == nil {
		return models.ErrUnknownStaff
	}

	sample, err := r.filter.Normalize(staffID, raw)
	if err != nil {
		return err
	}

	if err := entry.session.Apply(sample); err != nil {
		if errors.Is(err, models.ErrStaleSample) {
			return nil
		}
		return err
	}
	return nil
}

// ReplaceBoundary swaps the boundary used by a running session (if any),
// re-evaluating the last known sample immediately, and broadcasts the
// boundary change to all supervisors. raw == nil removes the boundary.
// Persistence is the caller's concern; this only updates live state.
func (r *Relay) ReplaceBoundary(ctx context.Context, staffID int64, raw json.RawMessage) error {
	boundary, err := spatial.ParseBoundary(raw)
	if err != nil {
		return err
	}

	r.mu.RLock()
	entry, ok := r.sessions[staffID]
	r.mu.RUnlock()
	if ok {
		entry.session.ReplaceBoundary(boundary, raw)
	}

	if boundary == nil {
		r.publish(models.StatusEvent{
			Type:      models.EventBoundaryRemoved,
			StaffID:   staffID,
			Timestamp: time.Now().UnixMilli(),
		})
	} else {
		r.publish(models.StatusEvent{
			Type:      models.EventBoundaryUpdated,
			StaffID:   staffID,
			Boundary:  raw,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return nil
}

// Subscribe adds a supervisor view to the fan-out set. The current status of
// every known session is replayed into the new subscription first, so a
// supervisor joining mid-session does not see an empty map. The returned
// function removes the subscription.
func (r *Relay) Subscribe(sink EventSink) (uuid.UUID, func()) {
	sub := newSubscriber(r.ctx, sink, r.limit)

	// register before replaying so no event published in between is lost.
	// Each snapshot is then enqueued under its session lock: emission also
	// runs under that lock, so later events for the same staff member
	// always land behind the snapshot. A live event slipping in ahead of
	// the snapshot is harmless, the snapshot reflects a state at least as
	// new and views apply events idempotently. Session locks are never
	// taken while holding subMu, which is what publish relies on.
	r.subMu.Lock()
	r.subs[sub.id] = sub
	r.subMu.Unlock()

	r.mu.RLock()
	entries := make([]*staffEntry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	for _, entry := range entries {
		entry.session.ReplayTo(sub.enqueue)
	}

	return sub.id, func() { r.Unsubscribe(sub.id) }
}

// Unsubscribe removes a supervisor subscription and stops its delivery
// goroutine
func (r *Relay) Unsubscribe(id uuid.UUID) {
	r.subMu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.subMu.Unlock()
	if ok {
		sub.close()
	}
}

// UnregisterByConnection handles any connection dropping. For a staff
// connection it starts the disconnect grace timer; for a supervisor
// subscription it removes it from the fan-out set.
func (r *Relay) UnregisterByConnection(connID uuid.UUID) {
	r.mu.Lock()
	staffID, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		if entry, live := r.sessions[staffID]; live && entry.connID == connID {
			entry.connected = false
			entry.graceTimer = time.AfterFunc(r.grace, func() {
				r.expireSession(staffID, connID)
			})
		}
	}
	r.mu.Unlock()
	if ok {
		return
	}

	r.Unsubscribe(connID)
}

// expireSession drops a session whose disconnect grace period has elapsed
// and signals staleness to supervisors
func (r *Relay) expireSession(staffID int64, connID uuid.UUID) {
	r.mu.Lock()
	entry, ok := r.sessions[staffID]
	if !ok || entry.connected || entry.connID != connID {
		// the staff member reconnected in the meantime
		r.mu.Unlock()
		return
	}
	delete(r.sessions, staffID)
	r.mu.Unlock()

	entry.session.MarkUnknown()
}

// SessionCount returns the number of live staff sessions
func (r *Relay) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops all subscriptions and pending grace timers
func (r *Relay) Close() {
	r.cancel()

	r.mu.Lock()
	for _, entry := range r.sessions {
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
		}
	}
	r.sessions = make(map[int64]*staffEntry)
	r.conns = make(map[uuid.UUID]int64)
	r.mu.Unlock()

	r.subMu.Lock()
	subs := r.subs
	r.subs = make(map[uuid.UUID]*subscriber)
	r.subMu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// publish fans an event out to every subscriber. Calls for one staff member
// arrive in order (sample processing is serialized per session), and each
// subscriber queue preserves enqueue order.
func (r *Relay) publish(ev models.StatusEvent) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, sub := range r.subs {
		sub.enqueue(ev)
	}
}
