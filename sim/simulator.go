package sim

import (
	"container/heap"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/carpool-sim/carpool-sim/sim/geo"
	"github.com/carpool-sim/carpool-sim/sim/routing"
)

// Simulator is a single-policy discrete-event kernel. It owns the event
// queue, the world state, the clock, and the metrics accumulator; all state
// mutation happens inside event handlers on one goroutine.
type Simulator struct {
	cfg       *Config
	matcher   Matcher
	engine    *routing.Engine
	world     *World
	metrics   *Metrics
	threshold *ThresholdPolicy
	rng       *PartitionedRNG

	events  EventHeap
	seq     uint64
	clock   float64
	horizon float64

	liveMode  bool
	processed uint64

	stopped atomic.Bool

	// mu serializes event execution against concurrent snapshot reads from
	// an embedding host.
	mu sync.Mutex
}

// NewSimulator creates a kernel for one policy. The routing engine is owned
// by this simulator; share the underlying map-service client, not the
// engine, when running policies side by side.
func NewSimulator(cfg *Config, matcher Matcher, engine *routing.Engine) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		matcher: matcher,
		engine:  engine,
		world:   NewWorld(),
		rng:     NewPartitionedRNG(NewSimulationKey(cfg.Simulation.RandomSeed)),
		threshold: NewThresholdPolicy(cfg.DriverTypes, cfg.Costs.QuitPenalty,
			cfg.Carpooling.PoolingBenefitFactor),
		metrics: NewMetrics(MetricsOptions{
			UpdateInterval:      cfg.Metrics.UpdateInterval,
			HistorySize:         cfg.Metrics.HistorySize,
			EnableStreaming:     cfg.Metrics.EnableStreaming,
			Capacity:            cfg.Carpooling.Capacity,
			MaxDetour:           cfg.Carpooling.DetourMax,
			DetourPenaltyPerSec: cfg.Costs.DetourPenaltyPerSec,
		}),
	}
	engine.OnInconsistency = s.metrics.RecordInconsistency
	heap.Init(&s.events)
	return s
}

// Now returns the current simulation clock.
func (s *Simulator) Now() float64 { return s.clock }

// World exposes the live state. Callers outside event handlers must go
// through Snapshot instead.
func (s *Simulator) World() *World { return s.world }

// Metrics exposes the accumulator, primarily for callback registration.
func (s *Simulator) Metrics() *Metrics { return s.metrics }

// PolicyName returns the matching policy's name.
func (s *Simulator) PolicyName() string { return s.matcher.Name() }

// EventsProcessed reports how many events the kernel has dispatched.
func (s *Simulator) EventsProcessed() uint64 { return s.processed }

func (s *Simulator) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Schedule pushes an event onto the queue.
func (s *Simulator) Schedule(ev Event) {
	heap.Push(&s.events, ev)
}

// Stop requests an early halt. Safe to call from any goroutine; the kernel
// stops before dispatching the next event.
func (s *Simulator) Stop() {
	s.stopped.Store(true)
}

// EnableLiveGeneration switches the kernel to self-driving workload mode:
// the initial fleet appears at time zero and subsequent arrivals are sampled
// in-handler from the live RNG partitions. Mutually exclusive with
// LoadStream.
func (s *Simulator) EnableLiveGeneration() {
	s.liveMode = true

	fleet := s.rng.ForSubsystem(SubsystemFleet)
	for i := 0; i < s.cfg.Simulation.InitialDrivers; i++ {
		dt := s.cfg.DriverTypes[fleet.Intn(len(s.cfg.DriverTypes))]
		s.Schedule(&DriverArrivalEvent{
			BaseEvent: newBaseEvent(0, s.nextSeq(), EventDriverArrival),
			Spec: &DriverSpec{
				Time:     0,
				ID:       NewDriverID(),
				TypeID:   dt.ID,
				Location: s.sampleLocation(fleet),
			},
			TypeID: dt.ID,
		})
	}

	live := s.rng.ForSubsystem(SubsystemLive)
	if s.cfg.Requests.ArrivalRate > 0 {
		s.Schedule(&RequestArrivalEvent{
			BaseEvent: newBaseEvent(live.ExpFloat64()/s.cfg.Requests.ArrivalRate,
				s.nextSeq(), EventRequestArrival),
		})
	}
	for _, dt := range s.cfg.DriverTypes {
		if dt.ArrivalRate <= 0 {
			continue
		}
		s.Schedule(&DriverArrivalEvent{
			BaseEvent: newBaseEvent(live.ExpFloat64()/dt.ArrivalRate,
				s.nextSeq(), EventDriverArrival),
			TypeID: dt.ID,
		})
	}
}

// Run consumes events until the queue drains, the horizon passes, or Stop is
// called. An event beyond the horizon halts the run with the clock pinned at
// the horizon; an event behind the clock is a kernel bug and panics.
func (s *Simulator) Run(duration float64) {
	s.horizon = duration

	for s.events.Len() > 0 {
		if s.stopped.Load() {
			logrus.Debugf("[%s] stopped at t=%.1f after %d events",
				s.matcher.Name(), s.clock, s.processed)
			return
		}

		ev := heap.Pop(&s.events).(Event)
		if ev.Time() > s.horizon {
			s.clock = s.horizon
			break
		}
		if ev.Time() < s.clock {
			panic(fmt.Sprintf("clock regression: event %s at t=%.6f behind clock t=%.6f",
				ev.Kind(), ev.Time(), s.clock))
		}

		s.mu.Lock()
		s.clock = ev.Time()
		ev.Execute(s)
		s.processed++
		s.metrics.SnapshotState(s.clock, s.world, s.cfg.DriverTypes)
		s.mu.Unlock()
	}

	if s.clock < duration {
		s.clock = duration
	}
}

// === Event handlers ===

func (s *Simulator) handleRequestArrival(e *RequestArrivalEvent) {
	now := s.clock

	var req *Request
	if e.Spec != nil {
		req = &Request{
			ID:              e.Spec.ID,
			Origin:          e.Spec.Origin,
			Destination:     e.Spec.Destination,
			ArrivalTime:     now,
			WeibullShape:    e.Spec.WeibullShape,
			WeibullScale:    e.Spec.WeibullScale,
			WaitingCostRate: s.cfg.Costs.WaitingCostPerSec,
			Status:          RequestWaiting,
		}
	} else {
		live := s.rng.ForSubsystem(SubsystemLive)
		req = &Request{
			ID:              NewRequestID(),
			Origin:          s.sampleLocation(live),
			Destination:     s.sampleLocation(live),
			ArrivalTime:     now,
			WeibullShape:    s.cfg.Requests.WeibullShape,
			WeibullScale:    s.cfg.Requests.WeibullScale,
			WaitingCostRate: s.cfg.Costs.WaitingCostPerSec,
			Status:          RequestWaiting,
		}
		if s.cfg.Requests.ArrivalRate > 0 {
			s.Schedule(&RequestArrivalEvent{
				BaseEvent: newBaseEvent(now+live.ExpFloat64()/s.cfg.Requests.ArrivalRate,
					s.nextSeq(), EventRequestArrival),
			})
		}
	}

	s.world.AddRequest(req)
	s.metrics.RecordArrival(req, now)

	patience := s.samplePatience(req)
	s.Schedule(&RequestQuitEvent{
		BaseEvent: newBaseEvent(now+patience, s.nextSeq(), EventRequestQuit),
		Request:   req,
	})

	req.Threshold = s.threshold.Threshold(req,
		len(s.world.WaitingRequests), s.cfg.Carpooling.Capacity)
	s.Schedule(&ThresholdReachedEvent{
		BaseEvent: newBaseEvent(now+req.Threshold, s.nextSeq(), EventThresholdReached),
		Request:   req,
	})

	if s.cfg.Carpooling.DynamicInsertionEnabled {
		if plan := s.matcher.PlanInsertion(s.world, req, now); plan != nil {
			s.applyInsertion(plan, now)
			return
		}
	}

	s.attemptMatching(now)
}

func (s *Simulator) handleDriverArrival(e *DriverArrivalEvent) {
	now := s.clock

	var spec DriverSpec
	if e.Spec != nil {
		spec = *e.Spec
	} else {
		live := s.rng.ForSubsystem(SubsystemLive)
		spec = DriverSpec{
			Time:     now,
			ID:       NewDriverID(),
			TypeID:   e.TypeID,
			Location: s.sampleLocation(live),
		}
		if dt, ok := s.cfg.DriverTypeByID(e.TypeID); ok && dt.ArrivalRate > 0 {
			s.Schedule(&DriverArrivalEvent{
				BaseEvent: newBaseEvent(now+live.ExpFloat64()/dt.ArrivalRate,
					s.nextSeq(), EventDriverArrival),
				TypeID: e.TypeID,
			})
		}
	}

	dt, ok := s.cfg.DriverTypeByID(spec.TypeID)
	if !ok {
		logrus.Warnf("driver arrival with unknown type %d dropped", spec.TypeID)
		return
	}

	// Fleet cap: arrivals beyond the cap are dropped, not queued.
	if s.cfg.Simulation.MaxDrivers > 0 && s.world.TotalDrivers() >= s.cfg.Simulation.MaxDrivers {
		return
	}

	s.world.AddDriver(&Driver{
		ID:             spec.ID,
		Type:           dt,
		Location:       spec.Location,
		Status:         DriverAvailable,
		AvailableSince: now,
	})

	s.attemptMatching(now)
}

func (s *Simulator) handleRequestQuit(e *RequestQuitEvent) {
	req := e.Request
	if req.Status != RequestWaiting {
		return
	}

	s.world.RemoveWaiting(req)
	req.Status = RequestQuit
	req.QuitTime = s.clock
	s.metrics.RecordQuit(req, s.clock, s.cfg.Costs.QuitPenalty)
}

func (s *Simulator) handleThresholdReached(e *ThresholdReachedEvent) {
	if e.Request.Status != RequestWaiting {
		return
	}
	// A forced round needs a free driver; arrival and completion events
	// trigger the rounds that cover appends.
	if len(s.world.AvailableDrivers) == 0 {
		return
	}
	s.attemptMatching(s.clock)
}

func (s *Simulator) handlePickupComplete(e *PickupCompleteEvent) {
	trip := e.Trip
	// Stale route version: the route was re-optimized after this event was
	// scheduled and a replacement is already queued.
	if e.RouteVersion != trip.RouteVersion {
		return
	}
	if trip.CompletionTime > 0 {
		return
	}

	now := s.clock
	req := e.Request

	trip.CompletePickup(req.ID)
	trip.Driver.Location = req.Origin
	req.Status = RequestInTransit
	req.PickupTime = now

	if trip.AllPickupsComplete() {
		trip.Driver.Status = DriverInTrip
		s.Schedule(&TripCompleteEvent{
			BaseEvent: newBaseEvent(now+s.legDuration(trip, trip.Driver.Location, trip.Destination),
				s.nextSeq(), EventTripComplete),
			Trip: trip,
		})
		return
	}

	s.scheduleNextPickup(trip, now)
}

func (s *Simulator) handleTripComplete(e *TripCompleteEvent) {
	now := s.clock
	trip := e.Trip
	trip.CompletionTime = now

	for _, p := range trip.Passengers {
		p.Status = RequestCompleted
		p.CompletionTime = now
	}

	d := trip.Driver
	d.Location = trip.Destination
	d.Status = DriverAvailable
	d.AvailableSince = now
	d.CurrentTrip = ""
	s.world.ReleaseDriver(d)
	s.world.CompleteTrip(trip)

	s.metrics.RecordTripComplete(trip, now)
	s.attemptMatching(now)
}

// === Plan materialization ===

func (s *Simulator) attemptMatching(now float64) {
	plan := s.matcher.PlanRound(s.world, now)
	if plan.Empty() {
		return
	}
	for i := range plan.Assignments {
		s.createTrip(&plan.Assignments[i], now)
	}
	for i := range plan.Insertions {
		s.applyInsertion(&plan.Insertions[i], now)
	}
}

func (s *Simulator) createTrip(a *Assignment, now float64) {
	trip := &Trip{
		ID:              NewTripID(),
		Driver:          a.Driver,
		Passengers:      a.Requests,
		Route:           a.Route,
		Destination:     a.Route[len(a.Route)-1],
		Capacity:        s.cfg.Carpooling.Capacity,
		StartTime:       now,
		PickupCost:      a.PickupCost,
		RouteCost:       a.RouteCost,
		IndividualCosts: a.CostShares,
		DetourRatios:    make(map[string]float64, len(a.DetourRatios)),
	}

	s.world.RemoveAvailable(a.Driver)
	a.Driver.Status = DriverEnRoutePickup
	a.Driver.CurrentTrip = trip.ID

	for _, req := range a.Requests {
		s.world.RemoveWaiting(req)
		req.Status = RequestMatched
		req.MatchTime = now
		req.AssignedDriver = a.Driver.ID
		req.TripID = trip.ID
		if info, ok := a.DetourRatios[req.ID]; ok {
			req.SoloTripDuration = info.SoloDuration
			req.ActualTripDuration = info.ActualDuration
			req.DetourRatio = info.Ratio
			trip.DetourRatios[req.ID] = info.Ratio
		}
		req.CostShare = a.CostShares[req.ID]
	}

	s.world.AddTrip(trip)
	s.metrics.RecordMatch(trip, now)
	s.scheduleNextPickup(trip, now)
}

func (s *Simulator) applyInsertion(plan *InsertionPlan, now float64) {
	trip := plan.Trip
	req := plan.Request
	oldCost := trip.TotalRouteCost()

	s.world.RemoveWaiting(req)
	req.Status = RequestMatched
	req.MatchTime = now
	req.AssignedDriver = trip.Driver.ID
	req.TripID = trip.ID

	trip.Route = plan.Route
	trip.Passengers = plan.Passengers
	trip.Destination = plan.Route[len(plan.Route)-1]
	trip.PickupCost = plan.PickupCost
	trip.RouteCost = plan.RouteCost
	trip.IndividualCosts = plan.CostShares
	trip.DetourRatios = make(map[string]float64, len(plan.DetourRatios))

	for _, p := range trip.Passengers {
		info, ok := plan.DetourRatios[p.ID]
		if !ok {
			continue
		}
		p.SoloTripDuration = info.SoloDuration
		p.ActualTripDuration = info.ActualDuration
		p.DetourRatio = info.Ratio
		p.CostShare = plan.CostShares[p.ID]
		trip.DetourRatios[p.ID] = info.Ratio
	}

	if plan.Reoptimized {
		// Invalidate the pending pickup event and reschedule against the new
		// route from the driver's current position.
		trip.RouteVersion++
		s.scheduleNextPickup(trip, now)
	}

	s.metrics.RecordInsertion(req, trip, now, trip.TotalRouteCost()-oldCost)
}

// scheduleNextPickup schedules the pickup-complete event for the waypoint the
// route cursor points at.
func (s *Simulator) scheduleNextPickup(trip *Trip, now float64) {
	idx := trip.CursorIndex
	if idx >= len(trip.Passengers) {
		return
	}

	from := trip.Driver.Location
	if idx > 0 {
		from = trip.Route[idx-1]
	}
	to := trip.Route[idx]

	s.Schedule(&PickupCompleteEvent{
		BaseEvent:    newBaseEvent(now+s.legDuration(trip, from, to), s.nextSeq(), EventPickupComplete),
		Trip:         trip,
		Request:      trip.Passengers[idx],
		RouteVersion: trip.RouteVersion,
	})
}

// legDuration converts a route-leg duration to travel time for the trip's
// driver, applying the type speed multiplier.
func (s *Simulator) legDuration(trip *Trip, from, to geo.Location) float64 {
	speed := trip.Driver.Type.SpeedMultiplier
	if speed <= 0 {
		speed = 1
	}
	return s.engine.PickupCost(from, to) / speed
}

// samplePatience draws a Weibull patience from the dedicated partition via
// inverse-CDF, floored at one second.
func (s *Simulator) samplePatience(req *Request) float64 {
	u := s.rng.ForSubsystem(SubsystemPatience).Float64()
	patience := req.WeibullScale * math.Pow(-math.Log(1-u), 1/req.WeibullShape)
	return math.Max(1, patience)
}

func (s *Simulator) sampleLocation(rng interface{ Float64() float64 }) geo.Location {
	b := s.cfg.Region.Bounds
	return geo.Location{
		Lat: b.LatMin + rng.Float64()*(b.LatMax-b.LatMin),
		Lon: b.LonMin + rng.Float64()*(b.LonMax-b.LonMin),
	}
}

// === Read-side API ===

// Snapshot returns a consistent copy of the live state. Safe to call while
// Run is executing on another goroutine.
func (s *Simulator) Snapshot() WorldSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world.Snapshot(s.clock)
}

// Summary returns the end-of-run digest.
func (s *Simulator) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Summary(s.clock)
}

// MetricsDocument returns the full metrics export view.
func (s *Simulator) MetricsDocument() MetricsDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Document(s.clock)
}

// ExportMetrics writes the metrics document to a JSON file.
func (s *Simulator) ExportMetrics(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.ExportJSON(path, s.clock)
}

// DumpActivePool logs the active trips at debug level.
func (s *Simulator) DumpActivePool() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.world.ActiveTrips {
		ids := make([]string, 0, len(t.Passengers))
		for _, p := range t.Passengers {
			ids = append(ids, p.ID)
		}
		logrus.Debugf("trip %s driver=%s passengers=%v picked_up=%d/%d cost=%.1f",
			t.ID, t.Driver.ID, ids, len(t.PickupsCompleted), len(t.Passengers), t.TotalRouteCost())
	}
}
