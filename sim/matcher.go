package sim

import (
	"github.com/carpool-sim/carpool-sim/sim/geo"
	"github.com/carpool-sim/carpool-sim/sim/routing"
)

// Assignment is one planned new trip: a driver and the request group it
// serves, with the evaluated route and cost breakdown.
type Assignment struct {
	Driver   *Driver
	Requests []*Request // in pickup order, aligned with Route
	Route    []geo.Location

	PickupCost float64
	RouteCost  float64

	CostShares   map[string]float64
	DetourRatios map[string]routing.DetourInfo
}

// InsertionPlan is one planned addition of a waiting request to a trip that
// is already en route.
type InsertionPlan struct {
	Request    *Request
	Trip       *Trip
	Route      []geo.Location
	Passengers []*Request // new pickup order, aligned with Route

	PickupCost   float64
	RouteCost    float64
	CostShares   map[string]float64
	DetourRatios map[string]routing.DetourInfo

	// Reoptimized is true when the route was re-solved and pending pickup
	// events must be invalidated; false for a plain append at the tail.
	Reoptimized bool
}

// RoundPlan is the outcome of one matching round. Matching is pure planning:
// the matcher mutates nothing, and the kernel materializes the plan —
// creating trips, transitioning entities, scheduling pickups, and recording
// metrics.
type RoundPlan struct {
	Assignments []Assignment
	Insertions  []InsertionPlan
}

// Empty reports whether the round produced no work.
func (p *RoundPlan) Empty() bool {
	return p == nil || (len(p.Assignments) == 0 && len(p.Insertions) == 0)
}

// Matcher is a matching policy. Implementations operate on the borrowed
// world within a single event and must not retain references.
type Matcher interface {
	// Name identifies the policy in logs and reports.
	Name() string

	// PlanRound plans a full matching round over the waiting requests and
	// available drivers.
	PlanRound(w *World, now float64) *RoundPlan

	// PlanInsertion plans adding one newly arrived request to an active
	// trip, or returns nil when no feasible insertion exists. Policies
	// without an arrival-time insertion path return nil.
	PlanInsertion(w *World, req *Request, now float64) *InsertionPlan
}
