package sim

import "github.com/carpool-sim/carpool-sim/sim/geo"

// RequestSpec is one pre-generated request arrival in a canonical event
// stream.
type RequestSpec struct {
	Time         float64
	ID           string
	Origin       geo.Location
	Destination  geo.Location
	WeibullShape float64
	WeibullScale float64
}

// DriverSpec is one pre-generated driver arrival in a canonical event
// stream. Initial fleet drivers appear as arrivals at time zero.
type DriverSpec struct {
	Time     float64
	ID       string
	TypeID   int
	Location geo.Location
}

// Stream is a canonical pre-generated arrival stream. Both policy kernels
// consume the same Stream read-only, which is what makes their comparison
// fair: identical arrival times, ids, origins, and destinations.
type Stream struct {
	Requests []RequestSpec
	Drivers  []DriverSpec
}

// LoadStream schedules every arrival in the stream. Must be called before
// Run, with the simulator in live-generation mode disabled.
func (s *Simulator) LoadStream(stream *Stream) {
	if s.liveMode {
		panic("LoadStream: simulator is in live generation mode")
	}
	for i := range stream.Requests {
		spec := &stream.Requests[i]
		s.Schedule(&RequestArrivalEvent{
			BaseEvent: newBaseEvent(spec.Time, s.nextSeq(), EventRequestArrival),
			Spec:      spec,
		})
	}
	for i := range stream.Drivers {
		spec := &stream.Drivers[i]
		s.Schedule(&DriverArrivalEvent{
			BaseEvent: newBaseEvent(spec.Time, s.nextSeq(), EventDriverArrival),
			Spec:      spec,
			TypeID:    spec.TypeID,
		})
	}
}
