package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

func testMetrics() *Metrics {
	return NewMetrics(MetricsOptions{
		UpdateInterval:      10,
		HistorySize:         5,
		Capacity:            3,
		MaxDetour:           1.5,
		DetourPenaltyPerSec: 2,
	})
}

func metricsTrip(passengers ...*Request) *Trip {
	dt := &DriverType{ID: 1, Name: "Normal", BaseCost: 15}
	return &Trip{
		ID:         "t1",
		Driver:     &Driver{ID: "d1", Type: dt},
		Passengers: passengers,
		Capacity:   3,
		PickupCost: 40,
		RouteCost:  60,
	}
}

func TestMetricsMatchAccounting(t *testing.T) {
	m := testMetrics()
	r1 := &Request{ID: "r1", ArrivalTime: 0, WaitingCostRate: 0.5}
	r2 := &Request{ID: "r2", ArrivalTime: 10, WaitingCostRate: 0.5}

	m.RecordArrival(r1, 0)
	m.RecordArrival(r2, 10)
	m.RecordMatch(metricsTrip(r1, r2), 30)

	doc := m.Document(30)
	assert.Equal(t, 2, doc.Cumulative.TotalRequests)
	assert.Equal(t, 2, doc.Cumulative.TotalMatches, "matches count passengers, not trips")
	assert.Equal(t, 1.0, doc.Cumulative.MatchRate)
	assert.Equal(t, 1, doc.Carpooling.PoolUtilization[2])
	assert.Equal(t, 2.0, doc.Carpooling.AvgPoolSize)

	// Waiting cost: r1 waited 30s, r2 waited 20s, both at 0.5/s.
	assert.InDelta(t, 25.0, doc.CostBreakdown.WaitingCost, 1e-9)
	// Routing cost is the trip's total (pickup + route).
	assert.InDelta(t, 100.0, doc.CostBreakdown.RoutingCost, 1e-9)
	assert.InDelta(t, 25.0, doc.Cumulative.AvgWaitingTime, 1e-9)

	assert.Equal(t, 1, doc.DriverStats[1].Trips)
	assert.Equal(t, 2, doc.DriverStats[1].Passengers)
}

func TestMetricsQuitAccounting(t *testing.T) {
	m := testMetrics()
	r := &Request{ID: "r1", ArrivalTime: 5}
	m.RecordArrival(r, 5)
	m.RecordQuit(r, 65, 100)

	doc := m.Document(65)
	assert.Equal(t, 1, doc.Cumulative.TotalQuits)
	assert.Equal(t, 0.0, doc.Cumulative.MatchRate)
	assert.InDelta(t, 100.0, doc.CostBreakdown.QuitPenalty, 1e-9)
}

func TestMetricsInsertionAccruesDelta(t *testing.T) {
	m := testMetrics()
	r1 := &Request{ID: "r1", WaitingCostRate: 0.5}
	trip := metricsTrip(r1)
	m.RecordMatch(trip, 0)

	r2 := &Request{ID: "r2", ArrivalTime: 0, WaitingCostRate: 0.5}
	m.RecordInsertion(r2, trip, 20, 30)

	doc := m.Document(20)
	assert.Equal(t, 1, doc.Carpooling.DynamicInsertions)
	// 100 at match plus the 30 delta.
	assert.InDelta(t, 130.0, doc.CostBreakdown.RoutingCost, 1e-9)
	// The inserted passenger's waiting cost accrues like a match.
	assert.InDelta(t, 10.0, doc.CostBreakdown.WaitingCost, 1e-9)
}

func TestMetricsDetourPenalty(t *testing.T) {
	m := testMetrics()
	within := &Request{ID: "a", DetourRatio: 1.2, SoloTripDuration: 100, ActualTripDuration: 120}
	beyond := &Request{ID: "b", DetourRatio: 2.0, SoloTripDuration: 100, ActualTripDuration: 200}

	m.RecordTripComplete(metricsTrip(within, beyond), 500)

	doc := m.Document(500)
	// Only the excess beyond 1.5x solo is penalized: (200-150)*2.
	assert.InDelta(t, 100.0, doc.CostBreakdown.DetourPenalty, 1e-9)
	assert.InDelta(t, 1.6, doc.Cumulative.AvgDetourRatio, 1e-9)
}

func TestMetricsTotalCostIsSumOfChannels(t *testing.T) {
	m := testMetrics()
	r := &Request{ID: "r1", ArrivalTime: 0, WaitingCostRate: 0.5}
	m.RecordArrival(r, 0)
	m.RecordMatch(metricsTrip(r), 10)
	m.RecordQuit(&Request{ID: "r2", ArrivalTime: 0}, 30, 100)

	doc := m.Document(30)
	sum := doc.CostBreakdown.WaitingCost + doc.CostBreakdown.RoutingCost +
		doc.CostBreakdown.QuitPenalty + doc.CostBreakdown.DetourPenalty
	assert.Equal(t, sum, doc.Cumulative.TotalCost)
}

func TestMetricsRingBufferBounded(t *testing.T) {
	m := testMetrics() // history size 5
	for i := 0; i < 20; i++ {
		m.RecordArrival(&Request{ID: "r"}, float64(i))
	}
	doc := m.Document(20)
	require.LessOrEqual(t, len(doc.RecentEvents), 5)
	assert.Equal(t, 19.0, doc.RecentEvents[len(doc.RecentEvents)-1].Time)
}

func TestMetricsStreamingCallback(t *testing.T) {
	m := NewMetrics(MetricsOptions{HistorySize: 10, Capacity: 3, EnableStreaming: true})
	var seen []string
	m.RegisterCallback(func(e RecordedEvent) { seen = append(seen, e.Type) })

	m.RecordArrival(&Request{ID: "r1"}, 1)
	m.RecordQuit(&Request{ID: "r1"}, 2, 100)

	require.Equal(t, []string{"request_arrival", "quit"}, seen)
}

func TestMetricsSnapshotThrottled(t *testing.T) {
	m := testMetrics() // interval 10
	w := NewWorld()
	types := []DriverType{{ID: 1}}

	m.SnapshotState(0, w, types)
	m.SnapshotState(5, w, types) // within interval, dropped
	m.SnapshotState(12, w, types)

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 0.0, snaps[0].Time)
	assert.Equal(t, 12.0, snaps[1].Time)
}

func TestMetricsExportJSON(t *testing.T) {
	m := testMetrics()
	m.RecordArrival(&Request{ID: "r1", Origin: geo.Location{Lat: 18.5, Lon: 73.8}}, 1)

	path := t.TempDir() + "/metrics.json"
	require.NoError(t, m.ExportJSON(path, 100))
	assert.FileExists(t, path)
}
