package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/geofence-backend-go/internal/models"
	"github.com/fieldtrack/geofence-backend-go/internal/spatial"
)

// fakeDirectory is an in-memory staff directory
type fakeDirectory struct {
	staff map[int64]*models.Staff
}

func (d *fakeDirectory) GetStaff(_ context.Context, staffID int64) (*models.Staff, error) {
	s, ok := d.staff[staffID]
	if !ok {
		return nil, models.ErrUnknownStaff
	}
	return s, nil
}

// chanSink delivers events into a channel for the test to read
type chanSink struct {
	ch chan models.StatusEvent
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan models.StatusEvent, 256)}
}

func (s *chanSink) Send(_ context.Context, ev models.StatusEvent) error {
	s.ch <- ev
	return nil
}

func (s *chanSink) next(t *testing.T) models.StatusEvent {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.StatusEvent{}
	}
}

func circleRaw(t *testing.T, lat, lon, radiusKm float64) json.RawMessage {
	t.Helper()
	raw, err := (&spatial.Circle{CenterLat: lat, CenterLon: lon, RadiusKm: radiusKm}).Encode()
	require.NoError(t, err)
	return raw
}

func testDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	return &fakeDirectory{staff: map[int64]*models.Staff{
		1: {StaffID: 1, FirstName: "Aida", LastName: "Trabelsi", Boundary: circleRaw(t, 34.0, 9.0, 1)},
		2: {StaffID: 2, FirstName: "Karim", LastName: "Ben Salah", Boundary: circleRaw(t, 35.0, 10.0, 1)},
		3: {StaffID: 3, FirstName: "Sami", LastName: "Gharbi", Boundary: circleRaw(t, 36.0, 10.0, 1)},
	}}
}

func TestRelayRegister(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{})
	defer r.Close()

	t.Run("returns the boundary snapshot", func(t *testing.T) {
		result, err := r.Register(context.Background(), 1, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.StaffID)
		assert.Equal(t, "Aida Trabelsi", result.Name)
		assert.Equal(t, models.StatusUnknown, result.Status)
		assert.NotEmpty(t, result.Boundary)
	})

	t.Run("unknown staff is rejected without creating a session", func(t *testing.T) {
		before := r.SessionCount()
		_, err := r.Register(context.Background(), 99, uuid.New())
		assert.ErrorIs(t, err, models.ErrUnknownStaff)
		assert.Equal(t, before, r.SessionCount())
	})
}

func TestRelayRegisterMalformedStoredBoundary(t *testing.T) {
	t.Parallel()

	dir := testDirectory(t)
	dir.staff[4] = &models.Staff{
		StaffID:   4,
		FirstName: "Mouna",
		Boundary:  json.RawMessage(`{"type":"Polygon","coordinates":[[[9,34]]]}`),
	}

	r := New(dir, Options{})
	defer r.Close()

	// registration still succeeds, with no boundary
	connID := uuid.New()
	result, err := r.Register(context.Background(), 4, connID)
	require.NoError(t, err)
	assert.Empty(t, result.Boundary)

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()
	sink.next(t) // replayed snapshot

	// samples drive position updates only; status stays Unknown
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34, Longitude: 9, Accuracy: 5, Timestamp: 1000}))
	ev := sink.next(t)
	assert.Equal(t, models.EventPosition, ev.Type)
	assert.Equal(t, models.StatusUnknown, ev.Status)
}

func TestRelaySampleFlow(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()
	sink.next(t) // replayed snapshot for staff 1

	// inside the circle
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 1000}))
	ev := sink.next(t)
	assert.Equal(t, models.EventStatus, ev.Type)
	assert.Equal(t, models.StatusInside, ev.Status)
	ev = sink.next(t)
	assert.Equal(t, models.EventPosition, ev.Type)

	// ~2.2 km away: one Outside transition, then the position update
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.020, Longitude: 9.0, Accuracy: 5, Timestamp: 2000}))
	ev = sink.next(t)
	assert.Equal(t, models.EventStatus, ev.Type)
	assert.Equal(t, models.StatusOutside, ev.Status)
	ev = sink.next(t)
	assert.Equal(t, models.EventPosition, ev.Type)

	t.Run("sample from an unregistered connection", func(t *testing.T) {
		err := r.SubmitSample(uuid.New(), models.RawSample{Latitude: 35, Longitude: 10, Accuracy: 5, Timestamp: 1000})
		assert.ErrorIs(t, err, models.ErrUnknownStaff)
	})

	t.Run("stale sample is dropped silently", func(t *testing.T) {
		require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 500}))
		select {
		case ev := <-sink.ch:
			t.Fatalf("unexpected event after stale sample: %+v", ev)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("filter rejection is returned to the caller", func(t *testing.T) {
		err := r.SubmitSample(connID, models.RawSample{Latitude: 200, Longitude: 9, Accuracy: 5, Timestamp: 3000})
		assert.Error(t, err)
	})
}

// TestRelaySubscribeReplaysState: a supervisor subscribing after sessions
// exist immediately receives their current status, not an empty stream.
func TestRelaySubscribeReplaysState(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{})
	defer r.Close()

	outside := map[int64][2]float64{
		1: {34.020, 9.0},
		2: {35.020, 10.0},
		3: {36.020, 10.0},
	}
	for staffID, pos := range outside {
		connID := uuid.New()
		_, err := r.Register(context.Background(), staffID, connID)
		require.NoError(t, err)
		require.NoError(t, r.SubmitSample(connID, models.RawSample{
			Latitude: pos[0], Longitude: pos[1], Accuracy: 5, Timestamp: 1000,
		}))
	}

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()

	seen := make(map[int64]models.Status)
	for i := 0; i < 3; i++ {
		ev := sink.next(t)
		assert.Equal(t, models.EventStatus, ev.Type)
		seen[ev.StaffID] = ev.Status
	}
	assert.Equal(t, map[int64]models.Status{
		1: models.StatusOutside,
		2: models.StatusOutside,
		3: models.StatusOutside,
	}, seen)
}

// TestRelaySubscribeConcurrentWithBoundaryChange: a boundary change racing a
// new subscription must reach the subscriber either as a boundary-updated
// event or folded into the replayed snapshot, never be lost.
func TestRelaySubscribeConcurrentWithBoundaryChange(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{QueueLimit: 1024})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 1000}))

	for i := 0; i < 25; i++ {
		radius := float64(i + 2)
		payload := circleRaw(t, 34.0, 9.0, radius)
		done := make(chan error, 1)
		go func() {
			done <- r.ReplaceBoundary(context.Background(), 1, payload)
		}()

		sink := newChanSink()
		_, unsubscribe := r.Subscribe(sink)
		require.NoError(t, <-done)

		observed := -1.0
		require.Eventually(t, func() bool {
			for {
				select {
				case ev := <-sink.ch:
					if len(ev.Boundary) == 0 {
						continue
					}
					b, err := spatial.ParseBoundary(ev.Boundary)
					if err != nil {
						continue
					}
					if c, ok := b.(*spatial.Circle); ok {
						observed = c.RadiusKm
					}
				default:
					return observed == radius
				}
			}
		}, 2*time.Second, 5*time.Millisecond, "round %d: subscriber never saw radius %v", i, radius)

		unsubscribe()
	}
}

// TestRelayReplaceBoundary covers the editor path: narrowing the area flips
// the status without any new sample, and the boundary change itself is
// broadcast.
func TestRelayReplaceBoundary(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)

	// inside the original 1 km circle, ~560 m east of center
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.0, Longitude: 9.0061, Accuracy: 5, Timestamp: 1000}))

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()
	snap := sink.next(t)
	require.Equal(t, models.StatusInside, snap.Status)

	// narrow the circle to 100 m: the last sample now falls outside
	require.NoError(t, r.ReplaceBoundary(context.Background(), 1, circleRaw(t, 34.0, 9.0, 0.1)))

	ev := sink.next(t)
	assert.Equal(t, models.EventStatus, ev.Type)
	assert.Equal(t, models.StatusOutside, ev.Status)

	ev = sink.next(t)
	assert.Equal(t, models.EventBoundaryUpdated, ev.Type)
	assert.Equal(t, int64(1), ev.StaffID)
	assert.NotEmpty(t, ev.Boundary)

	t.Run("removal broadcasts and forces Unknown", func(t *testing.T) {
		require.NoError(t, r.ReplaceBoundary(context.Background(), 1, nil))

		ev := sink.next(t)
		assert.Equal(t, models.EventStatus, ev.Type)
		assert.Equal(t, models.StatusUnknown, ev.Status)

		ev = sink.next(t)
		assert.Equal(t, models.EventBoundaryRemoved, ev.Type)
	})

	t.Run("malformed boundary keeps the prior one", func(t *testing.T) {
		err := r.ReplaceBoundary(context.Background(), 2, json.RawMessage(`{"type":"Blob"}`))
		assert.ErrorIs(t, err, spatial.ErrMalformedBoundary)
	})
}

// TestRelayDisconnectGrace: a dropped staff connection survives the grace
// period, then the session is removed and supervisors see Unknown.
func TestRelayDisconnectGrace(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{DisconnectGrace: 50 * time.Millisecond})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)
	require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 1000}))

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()
	require.Equal(t, models.StatusInside, sink.next(t).Status)

	r.UnregisterByConnection(connID)

	// still live within the grace period
	assert.Equal(t, 1, r.SessionCount())

	ev := sink.next(t)
	assert.Equal(t, models.EventStatus, ev.Type)
	assert.Equal(t, models.StatusUnknown, ev.Status)
	assert.Eventually(t, func() bool { return r.SessionCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestRelayReconnectWithinGrace: re-registering before the grace period
// expires keeps the session, including its status and last sample.
func TestRelayReconnectWithinGrace(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{DisconnectGrace: time.Hour})
	defer r.Close()

	oldConn := uuid.New()
	_, err := r.Register(context.Background(), 1, oldConn)
	require.NoError(t, err)
	require.NoError(t, r.SubmitSample(oldConn, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 1000}))

	r.UnregisterByConnection(oldConn)

	result, err := r.Register(context.Background(), 1, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.StatusInside, result.Status)
	assert.Equal(t, 1, r.SessionCount())
}

// TestRelayNewRegistrationSupersedes: a second registration for the same
// staff id replaces the connection, and dropping the old connection no
// longer affects the session.
func TestRelayNewRegistrationSupersedes(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{DisconnectGrace: 10 * time.Millisecond})
	defer r.Close()

	oldConn, newConn := uuid.New(), uuid.New()
	_, err := r.Register(context.Background(), 1, oldConn)
	require.NoError(t, err)
	_, err = r.Register(context.Background(), 1, newConn)
	require.NoError(t, err)

	// the superseded connection dropping must not start a grace timer
	r.UnregisterByConnection(oldConn)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.SessionCount())
}

// TestRelaySupersededConnectionCannotDriveSession: after a staff member
// reconnects, samples from the replaced connection are rejected instead of
// interleaving with the live device.
func TestRelaySupersededConnectionCannotDriveSession(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{DisconnectGrace: time.Hour})
	defer r.Close()

	oldConn, newConn := uuid.New(), uuid.New()
	_, err := r.Register(context.Background(), 1, oldConn)
	require.NoError(t, err)
	_, err = r.Register(context.Background(), 1, newConn)
	require.NoError(t, err)

	err = r.SubmitSample(oldConn, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 1000})
	assert.ErrorIs(t, err, models.ErrUnknownStaff)

	// the live connection is unaffected
	require.NoError(t, r.SubmitSample(newConn, models.RawSample{Latitude: 34.0, Longitude: 9.0, Accuracy: 5, Timestamp: 2000}))
}

// TestRelayRegisterSecondStaffDetachesFirst: one connection switching to a
// different staff id must not leave the first session live forever; it is
// detached and expires after the grace period.
func TestRelayRegisterSecondStaffDetachesFirst(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{DisconnectGrace: 20 * time.Millisecond})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)
	_, err = r.Register(context.Background(), 2, connID)
	require.NoError(t, err)

	// staff 1 was detached on re-registration and expires on its own
	assert.Eventually(t, func() bool { return r.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	// dropping the socket now expires staff 2 as well
	r.UnregisterByConnection(connID)
	assert.Eventually(t, func() bool { return r.SessionCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestRelayPerStaffOrdering: events for one staff member arrive at a
// subscriber in acceptance order.
func TestRelayPerStaffOrdering(t *testing.T) {
	t.Parallel()

	r := New(testDirectory(t), Options{QueueLimit: 1024})
	defer r.Close()

	connID := uuid.New()
	_, err := r.Register(context.Background(), 1, connID)
	require.NoError(t, err)

	sink := newChanSink()
	_, unsubscribe := r.Subscribe(sink)
	defer unsubscribe()
	sink.next(t) // snapshot

	for i := int64(1); i <= 50; i++ {
		lat := 34.0
		if i%2 == 0 {
			lat = 34.020 // outside
		}
		require.NoError(t, r.SubmitSample(connID, models.RawSample{Latitude: lat, Longitude: 9.0, Accuracy: 5, Timestamp: i * 100}))
	}

	var last int64
	// 50 position updates + 50 transitions (status flips every sample)
	for i := 0; i < 100; i++ {
		ev := sink.next(t)
		require.GreaterOrEqual(t, ev.Timestamp, last, "event %d out of order", i)
		last = ev.Timestamp
	}
}
