package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
)

func TestOptimalPoolsSharedDestination(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	dest := mLoc(18.60)
	w.AddRequest(waiting("r1", mLoc(18.50), dest, 1))
	w.AddRequest(waiting("r2", mLoc(18.51), dest, 2))
	w.AddDriver(idleDriver("d1", mLoc(18.49), 0))

	plan := m.PlanRound(w, 10)

	require.Len(t, plan.Assignments, 1)
	a := plan.Assignments[0]
	require.Len(t, a.Requests, 2, "one driver should pool both requests")
	// Pickup order follows the route: r1 first on the corridor.
	assert.Equal(t, "r1", a.Requests[0].ID)
	assert.Equal(t, "r2", a.Requests[1].ID)
	require.Len(t, a.Route, 3)
	assert.Contains(t, a.CostShares, "r1")
	assert.Contains(t, a.CostShares, "r2")
	assert.InDelta(t, a.PickupCost+a.RouteCost,
		a.CostShares["r1"]+a.CostShares["r2"], 1e-6,
		"cost shares sum to the full route cost")
}

func TestOptimalPrefersPoolingOverTwoSolos(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	dest := mLoc(18.60)
	w.AddRequest(waiting("r1", mLoc(18.50), dest, 1))
	w.AddRequest(waiting("r2", mLoc(18.505), dest, 2))
	w.AddDriver(idleDriver("d1", mLoc(18.49), 0))
	w.AddDriver(idleDriver("d2", mLoc(18.49), 0))

	plan := m.PlanRound(w, 10)

	// The capacity penalty rewards fuller cars: one pooled trip beats two
	// near-identical solos.
	require.Len(t, plan.Assignments, 1)
	assert.Len(t, plan.Assignments[0].Requests, 2)
}

func TestOptimalServesAllWhenDestinationsDiverge(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	w.AddRequest(waiting("r1", mLoc(18.50), mLoc(18.60), 1))
	w.AddRequest(waiting("r2", mLoc(18.51), mLoc(19.50), 2)) // ~100 km apart
	w.AddDriver(idleDriver("d1", mLoc(18.49), 0))
	w.AddDriver(idleDriver("d2", mLoc(18.52), 0))

	plan := m.PlanRound(w, 10)

	// Quit penalties dominate: serve both, necessarily as solos.
	require.Len(t, plan.Assignments, 2)
	for _, a := range plan.Assignments {
		assert.Len(t, a.Requests, 1)
	}
	assert.NotEqual(t, plan.Assignments[0].Driver.ID, plan.Assignments[1].Driver.ID)
}

func TestOptimalEmptyWorld(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()
	assert.True(t, m.PlanRound(w, 0).Empty())

	w.AddRequest(waiting("r1", mLoc(18.50), mLoc(18.60), 1))
	assert.True(t, m.PlanRound(w, 0).Empty(), "no drivers, nothing to plan")
}

func TestOptimalInsertionReoptimizes(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	d := idleDriver("d1", mLoc(18.49), 0)
	p1 := waiting("r1", mLoc(18.50), mLoc(18.60), 1)
	w.AddRequest(p1)
	w.RemoveWaiting(p1)
	trip := activeTrip("t1", d, []*sim.Request{p1}, mLoc(18.60))
	w.AddTrip(trip)

	req := waiting("r2", mLoc(18.51), mLoc(18.60), 5)
	w.AddRequest(req)

	plan := m.PlanInsertion(w, req, 5)
	require.NotNil(t, plan)
	assert.True(t, plan.Reoptimized)
	assert.Equal(t, "t1", plan.Trip.ID)
	require.Len(t, plan.Passengers, 2)
	assert.Equal(t, "r1", plan.Passengers[0].ID)
	assert.Equal(t, "r2", plan.Passengers[1].ID)
}

func TestOptimalInsertionSkipsStartedTrips(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	d := idleDriver("d1", mLoc(18.49), 0)
	p1 := waiting("r1", mLoc(18.50), mLoc(18.60), 1)
	trip := activeTrip("t1", d, []*sim.Request{p1}, mLoc(18.60))
	trip.CompletePickup("r1")
	w.AddTrip(trip)

	req := waiting("r2", mLoc(18.51), mLoc(18.60), 5)
	assert.Nil(t, m.PlanInsertion(w, req, 5), "no insertion once pickups began")
}

func TestOptimalInsertionRejectsDistantDestination(t *testing.T) {
	m := NewOptimalMatcher(newMatcherEngine(), testMatcherConfig())
	w := sim.NewWorld()

	d := idleDriver("d1", mLoc(18.49), 0)
	p1 := waiting("r1", mLoc(18.50), mLoc(18.60), 1)
	w.AddTrip(activeTrip("t1", d, []*sim.Request{p1}, mLoc(18.60)))

	req := waiting("r2", mLoc(18.51), geo.Location{Lat: 18.60, Lon: 74.2}, 5)
	assert.Nil(t, m.PlanInsertion(w, req, 5))
}

func TestOptimalRespectsDetourCap(t *testing.T) {
	cfg := testMatcherConfig()
	cfg.Carpooling.DetourMax = 1.05
	m := NewOptimalMatcher(newMatcherEngine(), cfg)
	w := sim.NewWorld()

	dest := mLoc(18.60)
	// Same destination, but r2's origin forces a sideways detour for r1.
	w.AddRequest(waiting("r1", mLoc(18.50), dest, 1))
	w.AddRequest(waiting("r2", geo.Location{Lat: 18.50, Lon: 73.84}, dest, 2))
	w.AddDriver(idleDriver("d1", mLoc(18.49), 0))
	w.AddDriver(idleDriver("d2", mLoc(18.49), 0))

	plan := m.PlanRound(w, 10)

	// Pooling would breach the cap, so both ride solo.
	require.Len(t, plan.Assignments, 2)
	for _, a := range plan.Assignments {
		assert.Len(t, a.Requests, 1)
	}
}

func TestOptimalEndToEndBoundedByDriversAndCapacity(t *testing.T) {
	cfg := testMatcherConfig()
	cfg.Simulation.Duration = 50
	cfg.Simulation.MaxDrivers = 3
	cfg.Carpooling.DynamicInsertionEnabled = false

	engine := newMatcherEngine()
	s := sim.NewSimulator(cfg, NewOptimalMatcher(engine, cfg), engine)

	// Three drivers, ten co-destinational requests with near-zero patience:
	// whatever is not matched on arrival gives up before any trip completes.
	stream := &sim.Stream{}
	for i := 0; i < 3; i++ {
		stream.Drivers = append(stream.Drivers, sim.DriverSpec{
			Time: 0, ID: fmt.Sprintf("d%d", i), TypeID: 1, Location: mLoc(18.49),
		})
	}
	for i := 0; i < 10; i++ {
		stream.Requests = append(stream.Requests, sim.RequestSpec{
			Time: 1, ID: fmt.Sprintf("r%02d", i),
			Origin: mLoc(18.50 + 0.001*float64(i)), Destination: mLoc(18.60),
			WeibullShape: 2, WeibullScale: 0.1,
		})
	}
	s.LoadStream(stream)
	s.Run(cfg.Simulation.Duration)

	sum := s.Summary()
	assert.Equal(t, 10, sum.TotalRequests)
	assert.LessOrEqual(t, len(s.World().ActiveTrips), 3, "at most one trip per driver")
	assert.LessOrEqual(t, sum.TotalMatches, 9, "three cars of capacity three")
	assert.Equal(t, 10-sum.TotalMatches, sum.TotalQuits, "every unserved request quits")
	for _, trip := range s.World().ActiveTrips {
		assert.LessOrEqual(t, len(trip.Passengers), cfg.Carpooling.Capacity)
	}
}
