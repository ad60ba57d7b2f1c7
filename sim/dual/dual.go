// Package dual runs the two matching policies head to head on one canonical
// workload and reports the comparison.
package dual

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/matching"
	"github.com/carpool-sim/carpool-sim/sim/routing"
	"github.com/carpool-sim/carpool-sim/sim/workload"
)

// Report is the outcome of a head-to-head run. Deltas are optimal minus
// FCFS; savings is the fraction of FCFS total cost the optimal policy
// avoided.
type Report struct {
	Duration float64     `json:"duration"`
	FCFS     sim.Summary `json:"fcfs"`
	Optimal  sim.Summary `json:"optimal"`

	CostSavings    float64 `json:"cost_savings"`
	MatchRateDelta float64 `json:"match_rate_delta"`
	AvgPoolDelta   float64 `json:"avg_pool_delta"`
	AvgWaitDelta   float64 `json:"avg_wait_delta"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Runner owns two policy kernels fed the identical pre-generated stream.
// The map-service client (and its route cache) is shared; each kernel gets
// its own routing engine so TSP memoization never leaks across policies.
type Runner struct {
	cfg    *sim.Config
	client *routing.Client
	stream *sim.Stream

	FCFS    *sim.Simulator
	Optimal *sim.Simulator
}

// NewRunner generates the canonical stream and builds both kernels. Both
// draw patience from the same seed partition, so a given request quits at
// the same instant under either policy unless matched first.
func NewRunner(cfg *sim.Config) *Runner {
	client := routing.NewClient(routing.ClientOptions{
		ServerURL:        cfg.OSRM.ServerURL,
		CacheSize:        cfg.OSRM.CacheSize,
		Timeout:          time.Duration(cfg.OSRM.TimeoutSec * float64(time.Second)),
		FallbackSpeedKMH: cfg.OSRM.FallbackSpeedKMH,
	})
	stream := workload.Generate(cfg)

	fcfsEngine := routing.NewEngine(client)
	optEngine := routing.NewEngine(client)

	r := &Runner{
		cfg:     cfg,
		client:  client,
		stream:  stream,
		FCFS:    sim.NewSimulator(cfg, matching.NewFCFSMatcher(fcfsEngine, cfg), fcfsEngine),
		Optimal: sim.NewSimulator(cfg, matching.NewOptimalMatcher(optEngine, cfg), optEngine),
	}
	r.FCFS.LoadStream(stream)
	r.Optimal.LoadStream(stream)
	return r
}

// Stream exposes the canonical workload both kernels consume.
func (r *Runner) Stream() *sim.Stream { return r.stream }

// Client exposes the shared map-service client for cache diagnostics.
func (r *Runner) Client() *routing.Client { return r.client }

// Run executes both kernels over the configured duration and builds the
// report. With parallel set, the kernels run on separate goroutines; they
// share only the thread-safe client, so the results are identical either
// way.
func (r *Runner) Run(parallel bool) Report {
	duration := r.cfg.Simulation.Duration
	start := time.Now()

	logrus.Infof("running fcfs vs optimal: duration=%.0fs requests=%d drivers=%d seed=%d",
		duration, len(r.stream.Requests), len(r.stream.Drivers), r.cfg.Simulation.RandomSeed)

	if parallel {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.FCFS.Run(duration)
		}()
		go func() {
			defer wg.Done()
			r.Optimal.Run(duration)
		}()
		wg.Wait()
	} else {
		r.FCFS.Run(duration)
		r.Optimal.Run(duration)
	}

	return r.report(duration, time.Since(start))
}

func (r *Runner) report(duration float64, elapsed time.Duration) Report {
	fcfs := r.FCFS.Summary()
	opt := r.Optimal.Summary()

	savings := 0.0
	if fcfs.TotalCost > 0 {
		savings = (fcfs.TotalCost - opt.TotalCost) / fcfs.TotalCost
	}

	return Report{
		Duration:       duration,
		FCFS:           fcfs,
		Optimal:        opt,
		CostSavings:    savings,
		MatchRateDelta: opt.MatchRate - fcfs.MatchRate,
		AvgPoolDelta:   opt.AvgPoolSize - fcfs.AvgPoolSize,
		AvgWaitDelta:   opt.AvgWaitingTime - fcfs.AvgWaitingTime,
		Elapsed:        elapsed,
	}
}

// Log writes the comparison at info level.
func (rep Report) Log() {
	logrus.Infof("fcfs:    cost=%.2f match_rate=%.3f avg_pool=%.2f avg_wait=%.1fs quits=%d",
		rep.FCFS.TotalCost, rep.FCFS.MatchRate, rep.FCFS.AvgPoolSize, rep.FCFS.AvgWaitingTime, rep.FCFS.TotalQuits)
	logrus.Infof("optimal: cost=%.2f match_rate=%.3f avg_pool=%.2f avg_wait=%.1fs quits=%d insertions=%d",
		rep.Optimal.TotalCost, rep.Optimal.MatchRate, rep.Optimal.AvgPoolSize, rep.Optimal.AvgWaitingTime,
		rep.Optimal.TotalQuits, rep.Optimal.DynamicInsertions)
	logrus.Infof("savings: %.1f%% of fcfs total cost (elapsed %s)", 100*rep.CostSavings, rep.Elapsed)
}
