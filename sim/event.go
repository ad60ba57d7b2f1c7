package sim

// EventKind tags the six event variants the kernel dispatches on.
type EventKind string

const (
	EventRequestArrival   EventKind = "request_arrival"
	EventDriverArrival    EventKind = "driver_arrival"
	EventRequestQuit      EventKind = "request_quit"
	EventThresholdReached EventKind = "threshold_reached"
	EventPickupComplete   EventKind = "pickup_complete"
	EventTripComplete     EventKind = "trip_complete"
)

// Event is a simulation event. Events are consumed in non-decreasing time
// order; ties break FIFO by sequence number.
type Event interface {
	Time() float64
	Seq() uint64
	Kind() EventKind
	Execute(s *Simulator)
}

// BaseEvent provides the common event fields. Sequence numbers come from the
// owning simulator's counter so replays are deterministic.
type BaseEvent struct {
	time float64
	seq  uint64
	kind EventKind
}

func newBaseEvent(time float64, seq uint64, kind EventKind) BaseEvent {
	return BaseEvent{time: time, seq: seq, kind: kind}
}

func (e *BaseEvent) Time() float64   { return e.time }
func (e *BaseEvent) Seq() uint64     { return e.seq }
func (e *BaseEvent) Kind() EventKind { return e.kind }

// RequestArrivalEvent materializes a new ride request. Spec is nil in live
// generation mode, in which case the kernel samples origin and destination.
type RequestArrivalEvent struct {
	BaseEvent
	Spec *RequestSpec
}

func (e *RequestArrivalEvent) Execute(s *Simulator) { s.handleRequestArrival(e) }

// DriverArrivalEvent materializes a new driver. Spec is nil in live
// generation mode; TypeID identifies the arriving driver type either way.
type DriverArrivalEvent struct {
	BaseEvent
	Spec   *DriverSpec
	TypeID int
}

func (e *DriverArrivalEvent) Execute(s *Simulator) { s.handleDriverArrival(e) }

// RequestQuitEvent fires when a request's patience expires. Ignored when the
// request is no longer waiting.
type RequestQuitEvent struct {
	BaseEvent
	Request *Request
}

func (e *RequestQuitEvent) Execute(s *Simulator) { s.handleRequestQuit(e) }

// ThresholdReachedEvent fires when a request's wait floor elapses, forcing a
// matching round if a driver is free.
type ThresholdReachedEvent struct {
	BaseEvent
	Request *Request
}

func (e *ThresholdReachedEvent) Execute(s *Simulator) { s.handleThresholdReached(e) }

// PickupCompleteEvent fires when the driver reaches the next pickup.
// RouteVersion guards against routes re-optimized after scheduling: a stale
// event is dropped and its replacement is already in the queue.
type PickupCompleteEvent struct {
	BaseEvent
	Trip         *Trip
	Request      *Request
	RouteVersion int
}

func (e *PickupCompleteEvent) Execute(s *Simulator) { s.handlePickupComplete(e) }

// TripCompleteEvent fires when the trip reaches its destination.
type TripCompleteEvent struct {
	BaseEvent
	Trip *Trip
}

func (e *TripCompleteEvent) Execute(s *Simulator) { s.handleTripComplete(e) }
