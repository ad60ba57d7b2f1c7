// Package sim implements a discrete-event carpool matching simulator.
//
// A Simulator is a single-policy kernel: it consumes a stream of request and
// driver arrivals, delegates matching decisions to a pluggable Matcher, and
// materializes the resulting trips while accumulating cost and pooling
// metrics. Events are processed in non-decreasing time order with FIFO
// tie-breaking, and all randomness is drawn from per-subsystem partitions of
// one master seed, so a run is fully reproducible from its configuration.
//
// Two kernels fed the same pre-generated Stream see identical workloads,
// which is the basis for head-to-head policy comparison in sim/dual.
package sim
