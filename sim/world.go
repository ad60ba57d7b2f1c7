package sim

import "github.com/carpool-sim/carpool-sim/sim/geo"

// World is the mutable state one simulator instance owns: registries of
// requests, drivers and trips plus the ordered active sets. All mutation
// happens inside event handlers; matchers receive the World as a borrowed
// read-only view and must never retain references past a single event.
type World struct {
	// Ordered active sets. WaitingRequests keeps arrival order; the FCFS
	// baseline depends on it.
	WaitingRequests  []*Request
	AvailableDrivers []*Driver
	ActiveTrips      []*Trip
	CompletedTrips   []*Trip

	// Identity registries for the non-ownership direction of
	// cross-references. Entries are never removed during a run.
	Requests map[string]*Request
	Drivers  map[string]*Driver
	Trips    map[string]*Trip
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		Requests: make(map[string]*Request),
		Drivers:  make(map[string]*Driver),
		Trips:    make(map[string]*Trip),
	}
}

// AddRequest registers a new request and places it in the waiting set.
func (w *World) AddRequest(r *Request) {
	w.Requests[r.ID] = r
	w.WaitingRequests = append(w.WaitingRequests, r)
}

// RemoveWaiting takes a request out of the waiting set. Returns false when
// the request was not waiting (already matched or quit).
func (w *World) RemoveWaiting(r *Request) bool {
	for i, q := range w.WaitingRequests {
		if q.ID == r.ID {
			w.WaitingRequests = append(w.WaitingRequests[:i], w.WaitingRequests[i+1:]...)
			return true
		}
	}
	return false
}

// IsWaiting reports whether the request is currently in the waiting set.
func (w *World) IsWaiting(r *Request) bool {
	for _, q := range w.WaitingRequests {
		if q.ID == r.ID {
			return true
		}
	}
	return false
}

// AddDriver registers a new driver and places it in the available pool.
func (w *World) AddDriver(d *Driver) {
	w.Drivers[d.ID] = d
	w.AvailableDrivers = append(w.AvailableDrivers, d)
}

// RemoveAvailable takes a driver out of the available pool.
func (w *World) RemoveAvailable(d *Driver) bool {
	for i, q := range w.AvailableDrivers {
		if q.ID == d.ID {
			w.AvailableDrivers = append(w.AvailableDrivers[:i], w.AvailableDrivers[i+1:]...)
			return true
		}
	}
	return false
}

// ReleaseDriver returns an already-registered driver to the available pool.
func (w *World) ReleaseDriver(d *Driver) {
	w.AvailableDrivers = append(w.AvailableDrivers, d)
}

// AddTrip registers a new active trip.
func (w *World) AddTrip(t *Trip) {
	w.Trips[t.ID] = t
	w.ActiveTrips = append(w.ActiveTrips, t)
}

// CompleteTrip moves a trip from the active to the completed set.
func (w *World) CompleteTrip(t *Trip) {
	for i, q := range w.ActiveTrips {
		if q.ID == t.ID {
			w.ActiveTrips = append(w.ActiveTrips[:i], w.ActiveTrips[i+1:]...)
			break
		}
	}
	w.CompletedTrips = append(w.CompletedTrips, t)
}

// TotalDrivers counts drivers in circulation: available plus one per active
// trip. Used to enforce the fleet cap.
func (w *World) TotalDrivers() int {
	return len(w.AvailableDrivers) + len(w.ActiveTrips)
}

// === Live views (copy-on-read snapshots) ===

// DriverView is an immutable snapshot of one driver.
type DriverView struct {
	ID             string       `json:"id"`
	TypeName       string       `json:"type"`
	Location       geo.Location `json:"location"`
	Status         DriverStatus `json:"status"`
	AvailableSince float64      `json:"available_since"`
}

// RequestView is an immutable snapshot of one waiting request.
type RequestView struct {
	ID          string       `json:"id"`
	Origin      geo.Location `json:"origin"`
	Destination geo.Location `json:"destination"`
	ArrivalTime float64      `json:"arrival_time"`
	Threshold   float64      `json:"threshold"`
}

// TripView is an immutable snapshot of one active trip.
type TripView struct {
	ID               string         `json:"id"`
	DriverID         string         `json:"driver_id"`
	Passengers       []string       `json:"passengers"`
	Route            []geo.Location `json:"route"`
	Destination      geo.Location   `json:"destination"`
	CapacityUsed     int            `json:"capacity_used"`
	PickupsCompleted []string       `json:"pickups_completed"`
	TotalCost        float64        `json:"total_cost"`
}

// WorldSnapshot is a consistent copy of the live state, safe to hand to an
// embedding host while the simulation keeps running.
type WorldSnapshot struct {
	Time             float64       `json:"time"`
	AvailableDrivers []DriverView  `json:"available_drivers"`
	WaitingRequests  []RequestView `json:"waiting_requests"`
	ActiveTrips      []TripView    `json:"active_trips"`
}

// Snapshot copies the live state. Nothing in the returned value aliases
// mutable kernel internals.
func (w *World) Snapshot(now float64) WorldSnapshot {
	snap := WorldSnapshot{
		Time:             now,
		AvailableDrivers: make([]DriverView, 0, len(w.AvailableDrivers)),
		WaitingRequests:  make([]RequestView, 0, len(w.WaitingRequests)),
		ActiveTrips:      make([]TripView, 0, len(w.ActiveTrips)),
	}

	for _, d := range w.AvailableDrivers {
		snap.AvailableDrivers = append(snap.AvailableDrivers, DriverView{
			ID:             d.ID,
			TypeName:       d.Type.Name,
			Location:       d.Location,
			Status:         d.Status,
			AvailableSince: d.AvailableSince,
		})
	}
	for _, r := range w.WaitingRequests {
		snap.WaitingRequests = append(snap.WaitingRequests, RequestView{
			ID:          r.ID,
			Origin:      r.Origin,
			Destination: r.Destination,
			ArrivalTime: r.ArrivalTime,
			Threshold:   r.Threshold,
		})
	}
	for _, t := range w.ActiveTrips {
		view := TripView{
			ID:               t.ID,
			DriverID:         t.Driver.ID,
			Passengers:       make([]string, 0, len(t.Passengers)),
			Route:            append([]geo.Location(nil), t.Route...),
			Destination:      t.Destination,
			CapacityUsed:     len(t.Passengers),
			PickupsCompleted: append([]string(nil), t.PickupsCompleted...),
			TotalCost:        t.TotalRouteCost(),
		}
		for _, p := range t.Passengers {
			view.Passengers = append(view.Passengers, p.ID)
		}
		snap.ActiveTrips = append(snap.ActiveTrips, view)
	}

	return snap
}
