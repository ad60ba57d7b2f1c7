package routing

import (
	"math"
	"sort"
	"strings"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// costEpsilon breaks ties when comparing candidate costs.
const costEpsilon = 1e-9

// PassengerStop identifies one passenger's pickup and destination for detour
// computation. The routing engine never sees full request entities.
type PassengerStop struct {
	ID          string
	Origin      geo.Location
	Destination geo.Location
}

// DetourInfo captures one passenger's solo duration, in-pool duration, and
// their ratio.
type DetourInfo struct {
	SoloDuration   float64
	ActualDuration float64
	Ratio          float64
}

// Insertion is a feasible way to add one passenger to an existing trip.
type Insertion struct {
	Route        []geo.Location
	Passengers   []PassengerStop
	RouteCost    float64
	Detours      map[string]DetourInfo
	CostShares   map[string]float64
	CostIncrease float64
}

type tspSolution struct {
	route []geo.Location
	cost  float64
}

// Engine computes optimal pickup orderings, detour ratios, proportional cost
// splits, and trial insertions. TSP solutions are memoized; the cache is
// private to the owning matching policy and must not be shared between
// simulator instances.
type Engine struct {
	client   *Client
	tspCache map[string]tspSolution

	// OnInconsistency is invoked when a pickup cannot be located in a route
	// and the positional fallback is used. Optional.
	OnInconsistency func()
}

// NewEngine creates a routing engine on top of a map-service client.
func NewEngine(client *Client) *Engine {
	return &Engine{
		client:   client,
		tspCache: make(map[string]tspSolution),
	}
}

// SolveTSPPickups returns the cost-minimal pickup ordering for a driver at
// start serving the given pickups toward a common destination. The returned
// route is [pickup_1, ..., pickup_k, destination]; the cost is the duration
// of the full path from start through the route.
//
// Up to three pickups are solved exactly by enumeration; larger instances use
// a nearest-neighbor heuristic from the driver's position.
func (e *Engine) SolveTSPPickups(start geo.Location, pickups []geo.Location, destination geo.Location) ([]geo.Location, float64) {
	if len(pickups) == 0 {
		route := []geo.Location{destination}
		return route, e.pathCost(append([]geo.Location{start}, route...))
	}

	key := tspKey(start, pickups, destination)
	if sol, ok := e.tspCache[key]; ok {
		return sol.route, sol.cost
	}

	var route []geo.Location
	var cost float64
	if len(pickups) <= 3 {
		route, cost = e.bruteForceTSP(start, pickups, destination)
	} else {
		route, cost = e.nearestNeighborTSP(start, pickups, destination)
	}

	e.tspCache[key] = tspSolution{route: route, cost: cost}
	return route, cost
}

func (e *Engine) bruteForceTSP(start geo.Location, pickups []geo.Location, destination geo.Location) ([]geo.Location, float64) {
	var best []geo.Location
	bestCost := math.Inf(1)

	permute(len(pickups), func(order []int) {
		route := make([]geo.Location, 0, len(pickups)+1)
		for _, idx := range order {
			route = append(route, pickups[idx])
		}
		route = append(route, destination)

		cost := e.pathCost(append([]geo.Location{start}, route...))
		// Strict less: the first permutation in index order wins ties.
		if cost < bestCost {
			bestCost = cost
			best = route
		}
	})

	return best, bestCost
}

func (e *Engine) nearestNeighborTSP(start geo.Location, pickups []geo.Location, destination geo.Location) ([]geo.Location, float64) {
	remaining := make([]geo.Location, len(pickups))
	copy(remaining, pickups)

	route := make([]geo.Location, 0, len(pickups)+1)
	current := start

	for len(remaining) > 0 {
		bestIdx := 0
		bestDur := math.Inf(1)
		for i, p := range remaining {
			d := e.client.Duration(current, p)
			if d < bestDur {
				bestDur = d
				bestIdx = i
			}
		}
		current = remaining[bestIdx]
		route = append(route, current)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	route = append(route, destination)
	return route, e.pathCost(append([]geo.Location{start}, route...))
}

// pathCost is the duration of a multi-waypoint path as one route query.
func (e *Engine) pathCost(points []geo.Location) float64 {
	if len(points) < 2 {
		return 0
	}
	return e.client.Route(points).Duration
}

// SegmentCost sums consecutive point-to-point durations along a route.
// The FCFS baseline uses this instead of a multi-waypoint query.
func (e *Engine) SegmentCost(route []geo.Location) float64 {
	total := 0.0
	for i := 0; i < len(route)-1; i++ {
		total += e.client.Duration(route[i], route[i+1])
	}
	return total
}

// PickupCost is the duration for the driver to reach the first pickup.
func (e *Engine) PickupCost(driverLoc, pickup geo.Location) float64 {
	return e.client.Duration(driverLoc, pickup)
}

// ComputeDetours derives per-passenger detour ratios for a route. A
// passenger's pickup is located in the route by coordinate match within
// geo.CoordEpsilon; if not found, the positional index is used and the
// inconsistency hook fires. A zero solo duration yields ratio 1.0.
func (e *Engine) ComputeDetours(route []geo.Location, passengers []PassengerStop) map[string]DetourInfo {
	detours := make(map[string]DetourInfo, len(passengers))

	for i, p := range passengers {
		solo := e.client.Duration(p.Origin, p.Destination)

		idx := -1
		for j := 0; j < len(route)-1; j++ {
			if route[j].ApproxEqual(p.Origin) {
				idx = j
				break
			}
		}
		if idx < 0 {
			idx = i
			if idx > len(route)-1 {
				idx = len(route) - 1
			}
			if e.OnInconsistency != nil {
				e.OnInconsistency()
			}
		}

		actual := e.pathCost(route[idx:])

		ratio := 1.0
		if solo > 0 {
			ratio = actual / solo
		}
		detours[p.ID] = DetourInfo{SoloDuration: solo, ActualDuration: actual, Ratio: ratio}
	}

	return detours
}

// DetoursFeasible reports whether every ratio is within the cap.
func DetoursFeasible(detours map[string]DetourInfo, maxDetour float64) bool {
	for _, d := range detours {
		if d.Ratio > maxDetour {
			return false
		}
	}
	return true
}

// SplitCosts divides the total route cost proportionally to detour ratios.
// Passengers with higher detours pay a larger share; when all ratios are zero
// the split is equal. Accumulation runs in sorted key order so results are
// bit-identical across runs.
func SplitCosts(total float64, detours map[string]DetourInfo) map[string]float64 {
	shares := make(map[string]float64, len(detours))
	if len(detours) == 0 {
		return shares
	}

	ids := sortedKeys(detours)
	weightSum := 0.0
	for _, id := range ids {
		weightSum += detours[id].Ratio
	}

	if weightSum == 0 {
		equal := total / float64(len(detours))
		for _, id := range ids {
			shares[id] = equal
		}
		return shares
	}

	for _, id := range ids {
		shares[id] = total * (detours[id].Ratio / weightSum)
	}
	return shares
}

func sortedKeys(m map[string]DetourInfo) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateRoute reports whether a route keeps every passenger within the
// detour cap.
func (e *Engine) ValidateRoute(route []geo.Location, passengers []PassengerStop, maxDetour float64) bool {
	return DetoursFeasible(e.ComputeDetours(route, passengers), maxDetour)
}

// TryInsert evaluates adding one passenger to an existing trip. The new
// pickup is tried at every position; each candidate re-solves the pickup TSP
// and recomputes detours. Candidates violating the detour cap are dropped.
// currentCost is the trip's total allocated cost before insertion; the
// candidate with the minimum cost increase wins. Returns nil when no feasible
// insertion exists or the trip is at capacity.
func (e *Engine) TryInsert(driverLoc geo.Location, route []geo.Location, passengers []PassengerStop,
	newPassenger PassengerStop, currentCost float64, capacity int, maxDetour float64) *Insertion {

	if len(passengers) >= capacity {
		return nil
	}

	destination := route[len(route)-1]
	currentPickups := make([]geo.Location, len(passengers))
	for i, p := range passengers {
		currentPickups[i] = p.Origin
	}

	var best *Insertion
	minIncrease := math.Inf(1)

	for pos := 0; pos <= len(currentPickups); pos++ {
		testPickups := insertLocation(currentPickups, newPassenger.Origin, pos)
		testPassengers := insertPassenger(passengers, newPassenger, pos)

		testRoute, testCost := e.SolveTSPPickups(driverLoc, testPickups, destination)
		testDetours := e.ComputeDetours(testRoute, testPassengers)
		if !DetoursFeasible(testDetours, maxDetour) {
			continue
		}

		testShares := SplitCosts(testCost, testDetours)
		increase := sumShares(testShares) - currentCost

		if increase < minIncrease-costEpsilon {
			minIncrease = increase
			best = &Insertion{
				Route:        testRoute,
				Passengers:   OrderPassengersByRoute(testRoute, testPassengers),
				RouteCost:    testCost,
				Detours:      testDetours,
				CostShares:   testShares,
				CostIncrease: increase,
			}
		}
	}

	return best
}

// OrderPassengersByRoute reorders passengers to match the pickup order of the
// route. Passengers whose origin is not found keep their relative position at
// the end.
func OrderPassengersByRoute(route []geo.Location, passengers []PassengerStop) []PassengerStop {
	type keyed struct {
		p   PassengerStop
		idx int
	}
	ordered := make([]keyed, len(passengers))
	for i, p := range passengers {
		idx := len(route) + i // unmatched passengers sort after matched ones, stable
		for j := 0; j < len(route)-1; j++ {
			if route[j].ApproxEqual(p.Origin) {
				idx = j
				break
			}
		}
		ordered[i] = keyed{p: p, idx: idx}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })

	out := make([]PassengerStop, len(ordered))
	for i, k := range ordered {
		out[i] = k.p
	}
	return out
}

// ClearCache drops all memoized TSP solutions.
func (e *Engine) ClearCache() {
	e.tspCache = make(map[string]tspSolution)
}

// TSPCacheSize reports the number of memoized TSP solutions.
func (e *Engine) TSPCacheSize() int {
	return len(e.tspCache)
}

func tspKey(start geo.Location, pickups []geo.Location, destination geo.Location) string {
	keys := make([]string, len(pickups))
	for i, p := range pickups {
		keys[i] = p.Key()
	}
	sort.Strings(keys)
	return start.Key() + "|" + strings.Join(keys, ";") + "|" + destination.Key()
}

// permute invokes fn with every permutation of [0, n) in lexicographic order.
func permute(n int, fn func(order []int)) {
	order := make([]int, n)
	used := make([]bool, n)
	var rec func(depth int)
	rec = func(depth int) {
		if depth == n {
			fn(order)
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			order[depth] = i
			rec(depth + 1)
			used[i] = false
		}
	}
	rec(0)
}

func insertLocation(list []geo.Location, loc geo.Location, pos int) []geo.Location {
	out := make([]geo.Location, 0, len(list)+1)
	out = append(out, list[:pos]...)
	out = append(out, loc)
	out = append(out, list[pos:]...)
	return out
}

func insertPassenger(list []PassengerStop, p PassengerStop, pos int) []PassengerStop {
	out := make([]PassengerStop, 0, len(list)+1)
	out = append(out, list[:pos]...)
	out = append(out, p)
	out = append(out, list[pos:]...)
	return out
}

func sumShares(shares map[string]float64) float64 {
	ids := make([]string, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0.0
	for _, id := range ids {
		total += shares[id]
	}
	return total
}
