package matching

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
	"github.com/carpool-sim/carpool-sim/sim/routing"
)

// quitPenaltyFloor keeps the serve incentive dominant even when route costs
// are tiny.
const quitPenaltyFloor = 1e6

// OptimalMatcher plans matching rounds by set partitioning: enumerate
// candidate passenger groups per destination cluster, evaluate every
// feasible (group, driver) pairing through the routing engine, and select
// the cost-minimal disjoint pairing by integer program. Large penalties for
// unserved requests and empty seats steer the objective toward serving
// everyone with full cars.
type OptimalMatcher struct {
	engine *routing.Engine

	capacity  int
	maxDetour float64
	radiusKm  float64
	capWeight float64
}

// NewOptimalMatcher creates the set-partitioning policy.
func NewOptimalMatcher(engine *routing.Engine, cfg *sim.Config) *OptimalMatcher {
	return &OptimalMatcher{
		engine:    engine,
		capacity:  cfg.Carpooling.Capacity,
		maxDetour: cfg.Carpooling.DetourMax,
		radiusKm:  cfg.Carpooling.ClusterRadiusKm,
		capWeight: cfg.Carpooling.CapacityPenaltyWeight,
	}
}

// Name implements sim.Matcher.
func (m *OptimalMatcher) Name() string { return "optimal" }

type pairEval struct {
	group  int
	driver int

	route      []geo.Location
	tspCost    float64
	pickupCost float64
	detours    map[string]routing.DetourInfo

	cost float64 // base cost + route cost, before penalty adjustment
}

// PlanRound implements sim.Matcher.
func (m *OptimalMatcher) PlanRound(w *sim.World, now float64) *sim.RoundPlan {
	plan := &sim.RoundPlan{}
	if len(w.WaitingRequests) == 0 || len(w.AvailableDrivers) == 0 {
		return plan
	}

	clusters := ClusterByDestination(w.WaitingRequests, m.radiusKm)
	groups := EnumerateGroups(clusters, m.capacity, m.radiusKm)
	if len(groups) == 0 {
		return plan
	}

	reqIndex := make(map[string]int, len(w.WaitingRequests))
	for i, r := range w.WaitingRequests {
		reqIndex[r.ID] = i
	}

	var pairs []pairEval
	maxCost := 0.0
	for gi := range groups {
		g := &groups[gi]
		origins := make([]geo.Location, len(g.Requests))
		for i, r := range g.Requests {
			origins[i] = r.Origin
		}
		stops := passengerStops(g.Requests)

		for di, d := range w.AvailableDrivers {
			route, tspCost := m.engine.SolveTSPPickups(d.Location, origins, g.Destination)
			detours := m.engine.ComputeDetours(route, stops)
			if !routing.DetoursFeasible(detours, m.maxDetour) {
				continue
			}

			cost := d.Type.BaseCost + tspCost
			if cost > maxCost {
				maxCost = cost
			}
			pairs = append(pairs, pairEval{
				group:      gi,
				driver:     di,
				route:      route,
				tspCost:    tspCost,
				pickupCost: m.engine.PickupCost(d.Location, route[0]),
				detours:    detours,
				cost:       cost,
			})
		}
	}
	if len(pairs) == 0 {
		return plan
	}

	quitPenalty := math.Max(10*maxCost, quitPenaltyFloor)
	capPenalty := m.capWeight * maxCost

	model := &ipModel{
		adjCost:     make([]float64, len(pairs)),
		members:     make([][]int, len(pairs)),
		driver:      make([]int, len(pairs)),
		numRequests: len(w.WaitingRequests),
		numDrivers:  len(w.AvailableDrivers),
	}
	for j, p := range pairs {
		g := &groups[p.group]
		model.adjCost[j] = p.cost +
			capPenalty*float64(m.capacity-g.Size()) -
			quitPenalty*float64(g.Size())
		members := make([]int, g.Size())
		for i, r := range g.Requests {
			members[i] = reqIndex[r.ID]
		}
		model.members[j] = members
		model.driver[j] = p.driver
	}

	selected := model.solve()
	logrus.Debugf("optimal round t=%.1f: %d groups, %d pairs, %d selected",
		now, len(groups), len(pairs), len(selected))

	for _, j := range selected {
		p := pairs[j]
		g := &groups[p.group]
		plan.Assignments = append(plan.Assignments, sim.Assignment{
			Driver:       w.AvailableDrivers[p.driver],
			Requests:     orderByRoute(p.route, g.Requests),
			Route:        p.route,
			PickupCost:   p.pickupCost,
			RouteCost:    p.tspCost - p.pickupCost,
			CostShares:   routing.SplitCosts(p.tspCost, p.detours),
			DetourRatios: p.detours,
		})
	}
	return plan
}

// PlanInsertion implements sim.Matcher. An arriving request may join an
// active trip whose pickups have not started, when the trip's destination is
// within the cluster radius and the re-optimized route keeps every detour
// within the cap. The cheapest cost increase across trips wins.
func (m *OptimalMatcher) PlanInsertion(w *sim.World, req *sim.Request, now float64) *sim.InsertionPlan {
	var bestPlan *sim.InsertionPlan
	bestIncrease := math.Inf(1)

	newStop := routing.PassengerStop{ID: req.ID, Origin: req.Origin, Destination: req.Destination}

	for _, trip := range w.ActiveTrips {
		if trip.IsFull() || len(trip.PickupsCompleted) > 0 {
			continue
		}
		if geo.HaversineKm(trip.Destination, req.Destination) > m.radiusKm {
			continue
		}

		ins := m.engine.TryInsert(trip.Driver.Location, trip.Route,
			passengerStops(trip.Passengers), newStop,
			trip.TotalRouteCost(), trip.Capacity, m.maxDetour)
		if ins == nil || ins.CostIncrease >= bestIncrease {
			continue
		}

		pickupCost := m.engine.PickupCost(trip.Driver.Location, ins.Route[0])
		bestIncrease = ins.CostIncrease
		bestPlan = &sim.InsertionPlan{
			Request:      req,
			Trip:         trip,
			Route:        ins.Route,
			Passengers:   stopsToRequests(w, ins.Passengers),
			PickupCost:   pickupCost,
			RouteCost:    ins.RouteCost - pickupCost,
			CostShares:   ins.CostShares,
			DetourRatios: ins.Detours,
			Reoptimized:  true,
		}
	}

	return bestPlan
}

func passengerStops(requests []*sim.Request) []routing.PassengerStop {
	stops := make([]routing.PassengerStop, len(requests))
	for i, r := range requests {
		stops[i] = routing.PassengerStop{ID: r.ID, Origin: r.Origin, Destination: r.Destination}
	}
	return stops
}

// orderByRoute returns the requests sorted into route pickup order.
func orderByRoute(route []geo.Location, requests []*sim.Request) []*sim.Request {
	ordered := routing.OrderPassengersByRoute(route, passengerStops(requests))
	byID := make(map[string]*sim.Request, len(requests))
	for _, r := range requests {
		byID[r.ID] = r
	}
	out := make([]*sim.Request, len(ordered))
	for i, stop := range ordered {
		out[i] = byID[stop.ID]
	}
	return out
}

func stopsToRequests(w *sim.World, stops []routing.PassengerStop) []*sim.Request {
	out := make([]*sim.Request, len(stops))
	for i, stop := range stops {
		out[i] = w.Requests[stop.ID]
	}
	return out
}
