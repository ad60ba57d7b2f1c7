package sim

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// RequestStatus is the lifecycle state of a ride request.
// Transitions: Waiting → {Matched, Quit}; Matched → InTransit → Completed.
// Terminal statuses are frozen.
type RequestStatus string

const (
	RequestWaiting   RequestStatus = "waiting"
	RequestMatched   RequestStatus = "matched"
	RequestInTransit RequestStatus = "in_transit"
	RequestCompleted RequestStatus = "completed"
	RequestQuit      RequestStatus = "quit"
)

// DriverStatus is the lifecycle state of a driver.
type DriverStatus string

const (
	DriverAvailable     DriverStatus = "available"
	DriverEnRoutePickup DriverStatus = "en_route_pickup"
	DriverInTrip        DriverStatus = "in_trip"
)

// DriverType is an immutable driver category: economics and arrival dynamics.
type DriverType struct {
	ID              int     `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	BaseCost        float64 `yaml:"base_cost" json:"base_cost"`
	ArrivalRate     float64 `yaml:"arrival_rate" json:"arrival_rate"` // events/sec
	SpeedMultiplier float64 `yaml:"speed_multiplier" json:"speed_multiplier"`
}

// Request is a ride request from a passenger.
type Request struct {
	ID          string
	Origin      geo.Location
	Destination geo.Location
	ArrivalTime float64

	// Patience distribution (Weibull) and waiting economics.
	WeibullShape    float64
	WeibullScale    float64
	WaitingCostRate float64

	Status RequestStatus

	// Lifecycle timestamps; zero until the transition happens.
	MatchTime      float64
	PickupTime     float64
	CompletionTime float64
	QuitTime       float64

	// Threshold is the computed wait floor, stored when scheduled.
	Threshold float64

	// Cross-references by identity key; ownership stays with the kernel.
	AssignedDriver string
	TripID         string

	// Derived carpool fields, populated on match.
	SoloTripDuration   float64
	ActualTripDuration float64
	DetourRatio        float64
	CostShare          float64
}

// WaitingTime returns how long the request has waited: until match if
// matched, else until now.
func (r *Request) WaitingTime(now float64) float64 {
	if r.MatchTime > 0 {
		return r.MatchTime - r.ArrivalTime
	}
	return now - r.ArrivalTime
}

// Driver is a vehicle in the system. Drivers are created by driver-arrival
// events and never destroyed during a run.
type Driver struct {
	ID             string
	Type           *DriverType
	Location       geo.Location
	Status         DriverStatus
	AvailableSince float64
	CurrentTrip    string // trip id, empty when available
}

// Trip is an active carpool: one driver, 1..capacity passengers sharing a
// common destination. The route is [pickup_1, ..., pickup_k, destination]
// with passengers kept in pickup order.
type Trip struct {
	ID          string
	Driver      *Driver
	Passengers  []*Request
	Route       []geo.Location
	Destination geo.Location
	Capacity    int

	StartTime      float64
	CompletionTime float64

	// Pickup progress: CursorIndex is the waypoint the driver is heading to;
	// PickupsCompleted holds the request ids already picked up.
	CursorIndex      int
	PickupsCompleted []string

	// RouteVersion invalidates pending pickup events when the route is
	// re-optimized by a dynamic insertion.
	RouteVersion int

	// Costs. TotalRouteCost is always PickupCost + RouteCost.
	PickupCost      float64
	RouteCost       float64
	IndividualCosts map[string]float64
	DetourRatios    map[string]float64
}

// TotalRouteCost is the pickup-leg cost plus the shared route cost.
func (t *Trip) TotalRouteCost() float64 {
	return t.PickupCost + t.RouteCost
}

// CapacityAvailable returns the number of free seats.
func (t *Trip) CapacityAvailable() int {
	return t.Capacity - len(t.Passengers)
}

// IsFull reports whether the trip is at capacity.
func (t *Trip) IsFull() bool {
	return len(t.Passengers) >= t.Capacity
}

// CompletePickup marks one pickup done and advances the route cursor.
func (t *Trip) CompletePickup(requestID string) {
	t.PickupsCompleted = append(t.PickupsCompleted, requestID)
	t.CursorIndex++
}

// AllPickupsComplete reports whether every passenger has been picked up.
func (t *Trip) AllPickupsComplete() bool {
	return len(t.PickupsCompleted) == len(t.Passengers)
}

// NewRequestID generates a request identity key.
func NewRequestID() string {
	return fmt.Sprintf("r_%s", shortUUID())
}

// NewDriverID generates a driver identity key.
func NewDriverID() string {
	return fmt.Sprintf("d_%s", shortUUID())
}

// NewTripID generates a trip identity key.
func NewTripID() string {
	return fmt.Sprintf("t_%s", shortUUID())
}

func shortUUID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}
