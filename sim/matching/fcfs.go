package matching

import (
	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
	"github.com/carpool-sim/carpool-sim/sim/routing"
)

// appendRadiusKm bounds destination compatibility for the FCFS append path.
const appendRadiusKm = 5.0

// FCFSMatcher is the first-come-first-served baseline: requests are served
// in arrival order, each by the longest-idle driver, one passenger per new
// trip. A waiting request may instead be appended to an en-route trip with a
// free seat and a destination within five kilometres; the pickup goes to the
// end of the route, no re-optimization.
type FCFSMatcher struct {
	engine   *routing.Engine
	capacity int
}

// NewFCFSMatcher creates the baseline policy.
func NewFCFSMatcher(engine *routing.Engine, cfg *sim.Config) *FCFSMatcher {
	return &FCFSMatcher{engine: engine, capacity: cfg.Carpooling.Capacity}
}

// Name implements sim.Matcher.
func (m *FCFSMatcher) Name() string { return "fcfs" }

// PlanRound implements sim.Matcher. Requests are visited in arrival order;
// each trip takes at most one append per round.
func (m *FCFSMatcher) PlanRound(w *sim.World, now float64) *sim.RoundPlan {
	plan := &sim.RoundPlan{}
	usedTrips := make(map[string]bool)
	usedDrivers := make(map[string]bool)

	for _, req := range w.WaitingRequests {
		if ins := m.planAppend(w, req, usedTrips); ins != nil {
			usedTrips[ins.Trip.ID] = true
			plan.Insertions = append(plan.Insertions, *ins)
			continue
		}

		d := m.pickDriver(w, usedDrivers)
		if d == nil {
			continue // no driver free, request keeps waiting
		}
		usedDrivers[d.ID] = true
		plan.Assignments = append(plan.Assignments, m.soloAssignment(d, req))
	}

	return plan
}

// PlanInsertion implements sim.Matcher: the arrival-time path is the same
// append rule.
func (m *FCFSMatcher) PlanInsertion(w *sim.World, req *sim.Request, now float64) *sim.InsertionPlan {
	return m.planAppend(w, req, nil)
}

// pickDriver returns the available driver idle the longest, ties broken by
// id for determinism.
func (m *FCFSMatcher) pickDriver(w *sim.World, used map[string]bool) *sim.Driver {
	var best *sim.Driver
	for _, d := range w.AvailableDrivers {
		if used[d.ID] {
			continue
		}
		if best == nil || d.AvailableSince < best.AvailableSince ||
			(d.AvailableSince == best.AvailableSince && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

func (m *FCFSMatcher) soloAssignment(d *sim.Driver, req *sim.Request) sim.Assignment {
	route := []geo.Location{req.Origin, req.Destination}
	pickupCost := m.engine.PickupCost(d.Location, req.Origin)
	routeCost := m.engine.SegmentCost(route)
	detours := m.engine.ComputeDetours(route, passengerStops([]*sim.Request{req}))

	// The pickup leg is trip overhead, not charged to the passenger.
	return sim.Assignment{
		Driver:       d,
		Requests:     []*sim.Request{req},
		Route:        route,
		PickupCost:   pickupCost,
		RouteCost:    routeCost,
		CostShares:   routing.SplitCosts(routeCost, detours),
		DetourRatios: detours,
	}
}

// planAppend finds the first active trip that can take the request: a free
// seat, pickups still in progress, destination within the append radius. The
// pickup is appended before the destination so pending pickup events stay
// valid.
func (m *FCFSMatcher) planAppend(w *sim.World, req *sim.Request, used map[string]bool) *sim.InsertionPlan {
	for _, trip := range w.ActiveTrips {
		if used[trip.ID] || trip.IsFull() || trip.AllPickupsComplete() {
			continue
		}
		if geo.HaversineKm(trip.Destination, req.Destination) >= appendRadiusKm {
			continue
		}

		route := make([]geo.Location, 0, len(trip.Route)+1)
		route = append(route, trip.Route[:len(trip.Route)-1]...)
		route = append(route, req.Origin, trip.Destination)

		passengers := make([]*sim.Request, 0, len(trip.Passengers)+1)
		passengers = append(passengers, trip.Passengers...)
		passengers = append(passengers, req)

		routeCost := m.engine.SegmentCost(route)
		detours := m.engine.ComputeDetours(route, passengerStops(passengers))

		// Passengers split the shared route cost only; the pickup leg stays
		// on the trip.
		return &sim.InsertionPlan{
			Request:      req,
			Trip:         trip,
			Route:        route,
			Passengers:   passengers,
			PickupCost:   trip.PickupCost,
			RouteCost:    routeCost,
			CostShares:   routing.SplitCosts(routeCost, detours),
			DetourRatios: detours,
			Reoptimized:  false,
		}
	}
	return nil
}
