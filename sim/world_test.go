package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

func TestWorldRequestLifecycle(t *testing.T) {
	w := NewWorld()
	r := &Request{ID: "r1", Status: RequestWaiting}

	w.AddRequest(r)
	assert.True(t, w.IsWaiting(r))
	assert.Len(t, w.WaitingRequests, 1)

	assert.True(t, w.RemoveWaiting(r))
	assert.False(t, w.IsWaiting(r))
	assert.False(t, w.RemoveWaiting(r), "second removal must report false")
	assert.Contains(t, w.Requests, "r1", "registry entries survive removal")
}

func TestWorldWaitingKeepsArrivalOrder(t *testing.T) {
	w := NewWorld()
	for _, id := range []string{"a", "b", "c"} {
		w.AddRequest(&Request{ID: id})
	}
	w.RemoveWaiting(w.Requests["b"])

	require.Len(t, w.WaitingRequests, 2)
	assert.Equal(t, "a", w.WaitingRequests[0].ID)
	assert.Equal(t, "c", w.WaitingRequests[1].ID)
}

func TestWorldDriverPool(t *testing.T) {
	w := NewWorld()
	dt := &DriverType{ID: 1}
	d := &Driver{ID: "d1", Type: dt}

	w.AddDriver(d)
	assert.Equal(t, 1, w.TotalDrivers())

	assert.True(t, w.RemoveAvailable(d))
	w.AddTrip(&Trip{ID: "t1", Driver: d})
	assert.Equal(t, 1, w.TotalDrivers(), "en-route drivers still count toward the fleet")

	w.CompleteTrip(w.Trips["t1"])
	w.ReleaseDriver(d)
	assert.Equal(t, 1, w.TotalDrivers())
	assert.Len(t, w.CompletedTrips, 1)
}

func TestWorldSnapshotDoesNotAlias(t *testing.T) {
	w := NewWorld()
	dt := &DriverType{ID: 1, Name: "Normal"}
	d := &Driver{ID: "d1", Type: dt, Location: geo.Location{Lat: 18.5, Lon: 73.8}}
	r := &Request{ID: "r1", Status: RequestWaiting}
	w.AddDriver(d)
	w.AddRequest(r)
	w.AddTrip(&Trip{
		ID:         "t1",
		Driver:     d,
		Passengers: []*Request{r},
		Route:      []geo.Location{{Lat: 18.5, Lon: 73.8}},
	})

	snap := w.Snapshot(42)
	require.Equal(t, 42.0, snap.Time)
	require.Len(t, snap.ActiveTrips, 1)

	// Mutating the snapshot's route must not touch the live trip.
	snap.ActiveTrips[0].Route[0] = geo.Location{Lat: 0, Lon: 0}
	assert.Equal(t, 18.5, w.Trips["t1"].Route[0].Lat)
}
