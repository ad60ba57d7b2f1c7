package sim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// RecordedEvent is one typed lifecycle event kept in the recent-event ring
// buffer and fanned out to streaming sinks.
type RecordedEvent struct {
	Type        string        `json:"type"`
	Time        float64       `json:"time"`
	RequestID   string        `json:"request_id,omitempty"`
	TripID      string        `json:"trip_id,omitempty"`
	DriverID    string        `json:"driver_id,omitempty"`
	Passengers  []string      `json:"passengers,omitempty"`
	PoolSize    int           `json:"pool_size,omitempty"`
	WaitingTime float64       `json:"waiting_time,omitempty"`
	Penalty     float64       `json:"penalty,omitempty"`
	RouteCost   float64       `json:"route_cost,omitempty"`
	Origin      *geo.Location `json:"origin,omitempty"`
	Destination *geo.Location `json:"destination,omitempty"`
}

// StateSnapshot is a periodic sample of live counts, throttled by the
// configured update interval.
type StateSnapshot struct {
	Time                float64     `json:"time"`
	ActiveRequests      int         `json:"active_requests"`
	AvailableDrivers    map[int]int `json:"available_drivers"` // by type id
	ActiveTrips         int         `json:"active_trips"`
	PassengersInTransit int         `json:"passengers_in_transit"`
}

// DriverTypeStats aggregates per-driver-type activity.
type DriverTypeStats struct {
	Trips      int `json:"trips"`
	Passengers int `json:"passengers"`
}

// CumulativeMetrics is the cumulative section of the metrics document.
type CumulativeMetrics struct {
	TotalRequests  int     `json:"total_requests"`
	TotalMatches   int     `json:"total_matches"`
	TotalQuits     int     `json:"total_quits"`
	MatchRate      float64 `json:"match_rate"`
	TotalCost      float64 `json:"total_cost"`
	AvgWaitingTime float64 `json:"avg_waiting_time"`
	AvgDetourRatio float64 `json:"avg_detour_ratio"`
}

// CarpoolingMetrics is the pooling section of the metrics document.
type CarpoolingMetrics struct {
	PoolUtilization   map[int]int `json:"pool_utilization"` // pool size -> trips
	AvgPoolSize       float64     `json:"avg_pool_size"`
	TotalTrips        int         `json:"total_trips"`
	DynamicInsertions int         `json:"dynamic_insertions"`
	InsertionRate     float64     `json:"insertion_rate"`
}

// CostBreakdown splits the total cost into its four channels.
type CostBreakdown struct {
	WaitingCost   float64 `json:"waiting_cost"`
	RoutingCost   float64 `json:"routing_cost"`
	QuitPenalty   float64 `json:"quit_penalty"`
	DetourPenalty float64 `json:"detour_penalty"`
}

// MetricsDocument is the on-demand JSON export shape.
type MetricsDocument struct {
	SimulationTime float64                 `json:"simulation_time"`
	Cumulative     CumulativeMetrics       `json:"cumulative"`
	Carpooling     CarpoolingMetrics       `json:"carpooling"`
	CostBreakdown  CostBreakdown           `json:"cost_breakdown"`
	DriverStats    map[int]DriverTypeStats `json:"driver_stats"`
	RecentEvents   []RecordedEvent         `json:"recent_events"`
	Inconsistent   int                     `json:"inconsistent_states,omitempty"`
}

// Summary is the end-of-run digest.
type Summary struct {
	TotalRequests     int     `json:"total_requests"`
	TotalMatches      int     `json:"total_matches"`
	TotalQuits        int     `json:"total_quits"`
	MatchRate         float64 `json:"match_rate"`
	AvgPoolSize       float64 `json:"avg_pool_size"`
	AvgWaitingTime    float64 `json:"avg_waiting_time"`
	AvgDetourRatio    float64 `json:"avg_detour_ratio"`
	DynamicInsertions int     `json:"dynamic_insertions"`
	TotalCost         float64 `json:"total_cost"`
}

// Metrics consumes lifecycle events from one simulator and derives live and
// cumulative views. Owned by a single kernel; not safe for concurrent use.
type Metrics struct {
	updateInterval      float64
	historySize         int
	enableStreaming     bool
	maxDetour           float64
	detourPenaltyPerSec float64

	callbacks []func(RecordedEvent)

	totalRequests   int
	totalMatches    int
	totalQuits      int
	totalInsertions int
	inconsistencies int

	waitingCost   float64
	routingCost   float64
	quitPenalty   float64
	detourPenalty float64

	poolStats    map[int]int
	waitingTimes []float64
	detourRatios []float64
	driverStats  map[int]DriverTypeStats

	recentEvents []RecordedEvent

	snapshots        []StateSnapshot
	lastSnapshotTime float64
}

// MetricsOptions configures a Metrics accumulator.
type MetricsOptions struct {
	UpdateInterval      float64
	HistorySize         int
	EnableStreaming     bool
	Capacity            int
	MaxDetour           float64
	DetourPenaltyPerSec float64
}

// NewMetrics creates an accumulator. The pool histogram is pre-seeded with
// sizes 1..capacity.
func NewMetrics(opts MetricsOptions) *Metrics {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	pool := make(map[int]int)
	for size := 1; size <= opts.Capacity; size++ {
		pool[size] = 0
	}
	return &Metrics{
		updateInterval:      opts.UpdateInterval,
		historySize:         opts.HistorySize,
		enableStreaming:     opts.EnableStreaming,
		maxDetour:           opts.MaxDetour,
		detourPenaltyPerSec: opts.DetourPenaltyPerSec,
		poolStats:           pool,
		driverStats:         make(map[int]DriverTypeStats),
	}
}

// RegisterCallback adds a streaming sink. Every recorded event and snapshot
// is fanned out when streaming is enabled.
func (m *Metrics) RegisterCallback(fn func(RecordedEvent)) {
	m.callbacks = append(m.callbacks, fn)
}

func (m *Metrics) emit(e RecordedEvent) {
	m.recentEvents = append(m.recentEvents, e)
	if len(m.recentEvents) > m.historySize {
		m.recentEvents = m.recentEvents[len(m.recentEvents)-m.historySize:]
	}
	if m.enableStreaming {
		for _, fn := range m.callbacks {
			fn(e)
		}
	}
}

// RecordArrival records a new request arrival.
func (m *Metrics) RecordArrival(req *Request, now float64) {
	m.totalRequests++
	origin := req.Origin
	dest := req.Destination
	m.emit(RecordedEvent{
		Type:        "request_arrival",
		Time:        now,
		RequestID:   req.ID,
		Origin:      &origin,
		Destination: &dest,
	})
}

// RecordMatch records a newly created trip. Matches are counted in
// passengers; waiting cost accrues per passenger, routing cost per trip.
func (m *Metrics) RecordMatch(trip *Trip, now float64) {
	poolSize := len(trip.Passengers)
	m.totalMatches += poolSize
	m.poolStats[poolSize]++

	stats := m.driverStats[trip.Driver.Type.ID]
	stats.Trips++
	stats.Passengers += poolSize
	m.driverStats[trip.Driver.Type.ID] = stats

	passengers := make([]string, 0, poolSize)
	for _, p := range trip.Passengers {
		waited := now - p.ArrivalTime
		m.waitingTimes = append(m.waitingTimes, waited)
		m.waitingCost += waited * p.WaitingCostRate
		passengers = append(passengers, p.ID)
	}

	m.routingCost += trip.TotalRouteCost()

	m.emit(RecordedEvent{
		Type:       "match",
		Time:       now,
		TripID:     trip.ID,
		DriverID:   trip.Driver.ID,
		Passengers: passengers,
		PoolSize:   poolSize,
		RouteCost:  trip.TotalRouteCost(),
	})
}

// RecordQuit records a patience expiry and accrues the quit penalty.
func (m *Metrics) RecordQuit(req *Request, now, penalty float64) {
	m.totalQuits++
	m.quitPenalty += penalty
	m.emit(RecordedEvent{
		Type:        "quit",
		Time:        now,
		RequestID:   req.ID,
		WaitingTime: now - req.ArrivalTime,
		Penalty:     penalty,
	})
}

// RecordInsertion records a dynamic insertion. The routing-cost channel
// accrues the trip's cost delta so that cumulative routing cost stays equal
// to the sum of trip total costs; the inserted passenger's waiting time and
// cost accrue as on a match.
func (m *Metrics) RecordInsertion(req *Request, trip *Trip, now, costDelta float64) {
	m.totalInsertions++
	m.routingCost += costDelta

	waited := now - req.ArrivalTime
	m.waitingTimes = append(m.waitingTimes, waited)
	m.waitingCost += waited * req.WaitingCostRate

	m.emit(RecordedEvent{
		Type:      "dynamic_insertion",
		Time:      now,
		RequestID: req.ID,
		TripID:    trip.ID,
		PoolSize:  len(trip.Passengers),
		RouteCost: costDelta,
	})
}

// RecordTripComplete records a finished trip and accrues detour penalties
// for passengers whose ratio exceeded the cap.
func (m *Metrics) RecordTripComplete(trip *Trip, now float64) {
	passengers := make([]string, 0, len(trip.Passengers))
	for _, p := range trip.Passengers {
		passengers = append(passengers, p.ID)
		if p.DetourRatio <= 0 {
			continue
		}
		m.detourRatios = append(m.detourRatios, p.DetourRatio)
		if p.DetourRatio > m.maxDetour {
			excess := p.ActualTripDuration - m.maxDetour*p.SoloTripDuration
			if excess > 0 {
				m.detourPenalty += excess * m.detourPenaltyPerSec
			}
		}
	}

	m.emit(RecordedEvent{
		Type:       "trip_complete",
		Time:       now,
		TripID:     trip.ID,
		Passengers: passengers,
		RouteCost:  trip.TotalRouteCost(),
	})
}

// RecordInconsistency counts a defensively recovered state inconsistency.
func (m *Metrics) RecordInconsistency() {
	m.inconsistencies++
}

// SnapshotState samples the live state, throttled by the update interval.
func (m *Metrics) SnapshotState(now float64, w *World, driverTypes []DriverType) {
	if len(m.snapshots) > 0 && now-m.lastSnapshotTime < m.updateInterval {
		return
	}

	byType := make(map[int]int, len(driverTypes))
	for _, dt := range driverTypes {
		byType[dt.ID] = 0
	}
	for _, d := range w.AvailableDrivers {
		byType[d.Type.ID]++
	}
	inTransit := 0
	for _, t := range w.ActiveTrips {
		inTransit += len(t.Passengers)
	}

	snap := StateSnapshot{
		Time:                now,
		ActiveRequests:      len(w.WaitingRequests),
		AvailableDrivers:    byType,
		ActiveTrips:         len(w.ActiveTrips),
		PassengersInTransit: inTransit,
	}
	m.snapshots = append(m.snapshots, snap)
	m.lastSnapshotTime = now

	if m.enableStreaming {
		for _, fn := range m.callbacks {
			fn(RecordedEvent{Type: "snapshot", Time: now, PoolSize: snap.ActiveTrips})
		}
	}
}

// Snapshots returns the collected state samples.
func (m *Metrics) Snapshots() []StateSnapshot {
	return append([]StateSnapshot(nil), m.snapshots...)
}

// Document assembles the export view of the accumulated metrics.
func (m *Metrics) Document(simTime float64) MetricsDocument {
	totalTrips := 0
	weighted := 0
	for size, count := range m.poolStats {
		totalTrips += count
		weighted += size * count
	}
	avgPool := 0.0
	if totalTrips > 0 {
		avgPool = float64(weighted) / float64(totalTrips)
	}

	decided := m.totalMatches + m.totalQuits
	matchRate := 0.0
	if decided > 0 {
		matchRate = float64(m.totalMatches) / float64(decided)
	}

	insertionRate := 0.0
	if m.totalRequests > 0 {
		insertionRate = float64(m.totalInsertions) / float64(m.totalRequests)
	}

	avgWaiting := 0.0
	if len(m.waitingTimes) > 0 {
		avgWaiting = stat.Mean(m.waitingTimes, nil)
	}
	avgDetour := 0.0
	if len(m.detourRatios) > 0 {
		avgDetour = stat.Mean(m.detourRatios, nil)
	}

	totalCost := m.waitingCost + m.routingCost + m.quitPenalty + m.detourPenalty

	recent := m.recentEvents
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	driverStats := make(map[int]DriverTypeStats, len(m.driverStats))
	for id, stats := range m.driverStats {
		driverStats[id] = stats
	}

	pool := make(map[int]int, len(m.poolStats))
	for size, count := range m.poolStats {
		pool[size] = count
	}

	return MetricsDocument{
		SimulationTime: simTime,
		Cumulative: CumulativeMetrics{
			TotalRequests:  m.totalRequests,
			TotalMatches:   m.totalMatches,
			TotalQuits:     m.totalQuits,
			MatchRate:      matchRate,
			TotalCost:      totalCost,
			AvgWaitingTime: avgWaiting,
			AvgDetourRatio: avgDetour,
		},
		Carpooling: CarpoolingMetrics{
			PoolUtilization:   pool,
			AvgPoolSize:       avgPool,
			TotalTrips:        totalTrips,
			DynamicInsertions: m.totalInsertions,
			InsertionRate:     insertionRate,
		},
		CostBreakdown: CostBreakdown{
			WaitingCost:   m.waitingCost,
			RoutingCost:   m.routingCost,
			QuitPenalty:   m.quitPenalty,
			DetourPenalty: m.detourPenalty,
		},
		DriverStats:  driverStats,
		RecentEvents: append([]RecordedEvent(nil), recent...),
		Inconsistent: m.inconsistencies,
	}
}

// Summary returns the end-of-run digest.
func (m *Metrics) Summary(simTime float64) Summary {
	doc := m.Document(simTime)
	return Summary{
		TotalRequests:     doc.Cumulative.TotalRequests,
		TotalMatches:      doc.Cumulative.TotalMatches,
		TotalQuits:        doc.Cumulative.TotalQuits,
		MatchRate:         doc.Cumulative.MatchRate,
		AvgPoolSize:       doc.Carpooling.AvgPoolSize,
		AvgWaitingTime:    doc.Cumulative.AvgWaitingTime,
		AvgDetourRatio:    doc.Cumulative.AvgDetourRatio,
		DynamicInsertions: doc.Carpooling.DynamicInsertions,
		TotalCost:         doc.Cumulative.TotalCost,
	}
}

// ExportJSON writes the metrics document to a file.
func (m *Metrics) ExportJSON(path string, simTime float64) error {
	doc := m.Document(simTime)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Print logs the end-of-run summary.
func (m *Metrics) Print(policy string, simTime float64) {
	s := m.Summary(simTime)
	logrus.Infof("[%s] requests=%d matches=%d quits=%d match_rate=%.3f avg_pool=%.2f insertions=%d total_cost=%.2f",
		policy, s.TotalRequests, s.TotalMatches, s.TotalQuits, s.MatchRate, s.AvgPoolSize, s.DynamicInsertions, s.TotalCost)
}
