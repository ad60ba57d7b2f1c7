// Package workload pre-generates canonical arrival streams. A stream is
// produced once per seed and fed read-only to every policy kernel under
// comparison, so all policies face identical arrival times, locations, and
// identities.
package workload

import (
	"fmt"
	"math/rand"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// Generate builds the canonical stream for a configuration: the initial
// fleet at time zero, Poisson request arrivals, and per-type Poisson driver
// arrivals over the simulation duration.
//
// The initial fleet draws from the fleet partition and the arrival processes
// from the stream partition, in a fixed order, so the stream is a pure
// function of the configuration and seed.
func Generate(cfg *sim.Config) *sim.Stream {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Simulation.RandomSeed))
	duration := cfg.Simulation.Duration
	stream := &sim.Stream{}

	fleet := rng.ForSubsystem(sim.SubsystemFleet)
	for i := 0; i < cfg.Simulation.InitialDrivers; i++ {
		dt := cfg.DriverTypes[fleet.Intn(len(cfg.DriverTypes))]
		stream.Drivers = append(stream.Drivers, sim.DriverSpec{
			Time:     0,
			ID:       fmt.Sprintf("drv_%04d", i),
			TypeID:   dt.ID,
			Location: uniformLocation(fleet, cfg.Region.Bounds),
		})
	}

	arrivals := rng.ForSubsystem(sim.SubsystemStream)
	if cfg.Requests.ArrivalRate > 0 {
		t := 0.0
		for i := 0; ; i++ {
			t += arrivals.ExpFloat64() / cfg.Requests.ArrivalRate
			if t > duration {
				break
			}
			stream.Requests = append(stream.Requests, sim.RequestSpec{
				Time:         t,
				ID:           fmt.Sprintf("req_%04d", i),
				Origin:       uniformLocation(arrivals, cfg.Region.Bounds),
				Destination:  uniformLocation(arrivals, cfg.Region.Bounds),
				WeibullShape: cfg.Requests.WeibullShape,
				WeibullScale: cfg.Requests.WeibullScale,
			})
		}
	}

	seq := len(stream.Drivers)
	for _, dt := range cfg.DriverTypes {
		if dt.ArrivalRate <= 0 {
			continue
		}
		t := 0.0
		for {
			t += arrivals.ExpFloat64() / dt.ArrivalRate
			if t > duration {
				break
			}
			stream.Drivers = append(stream.Drivers, sim.DriverSpec{
				Time:     t,
				ID:       fmt.Sprintf("drv_%04d", seq),
				TypeID:   dt.ID,
				Location: uniformLocation(arrivals, cfg.Region.Bounds),
			})
			seq++
		}
	}

	return stream
}

func uniformLocation(rng *rand.Rand, b sim.RegionBounds) geo.Location {
	return geo.Location{
		Lat: b.LatMin + rng.Float64()*(b.LatMax-b.LatMin),
		Lon: b.LonMin + rng.Float64()*(b.LonMax-b.LonMin),
	}
}
