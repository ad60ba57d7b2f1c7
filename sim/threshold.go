package sim

import (
	"math"
	"sort"
)

// Threshold bounds in seconds.
const (
	minThresholdSec = 1.0
	maxThresholdSec = 600.0
)

// ThresholdPolicy derives, per waiting request, the minimum wait before the
// request should be matched even to a suboptimal driver. The base threshold
// inverts the Weibull patience hazard rate against driver-type economics;
// a pooling adjustment shortens it as the waiting pool fills.
type ThresholdPolicy struct {
	driverTypes []DriverType // sorted by base cost ascending
	quitPenalty float64
	alpha       float64 // pooling benefit factor
}

// NewThresholdPolicy creates a threshold policy over the configured driver
// types. alpha is the pooling benefit factor (default 0.3).
func NewThresholdPolicy(driverTypes []DriverType, quitPenalty, alpha float64) *ThresholdPolicy {
	sorted := append([]DriverType(nil), driverTypes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BaseCost < sorted[j].BaseCost
	})
	return &ThresholdPolicy{
		driverTypes: sorted,
		quitPenalty: quitPenalty,
		alpha:       alpha,
	}
}

// Threshold computes the wait floor for a request given the current waiting
// pool size and vehicle capacity. The base threshold is scaled by
// (1 − alpha·min(n,K)/K) and floored at one second.
func (tp *ThresholdPolicy) Threshold(req *Request, poolSize, capacity int) float64 {
	base := tp.baseThreshold(req, tp.driverTypes[0])
	return tp.applyPoolingAdjustment(base, poolSize, capacity)
}

// ThresholdsByType computes the wait floor against each driver type.
func (tp *ThresholdPolicy) ThresholdsByType(req *Request, poolSize, capacity int) map[int]float64 {
	out := make(map[int]float64, len(tp.driverTypes))
	for _, dt := range tp.driverTypes {
		base := tp.baseThreshold(req, dt)
		out[dt.ID] = tp.applyPoolingAdjustment(base, poolSize, capacity)
	}
	return out
}

// ShouldMatchNow reports whether the request has waited past its threshold.
func (tp *ThresholdPolicy) ShouldMatchNow(req *Request, now float64, poolSize, capacity int) bool {
	return now-req.ArrivalTime >= tp.Threshold(req, poolSize, capacity)
}

func (tp *ThresholdPolicy) applyPoolingAdjustment(base float64, poolSize, capacity int) float64 {
	if capacity <= 0 {
		return math.Max(minThresholdSec, base)
	}
	n := float64(poolSize)
	k := float64(capacity)
	factor := 1.0 - tp.alpha*math.Min(n, k)/k
	return math.Max(minThresholdSec, base*factor)
}

// baseThreshold inverts the Weibull hazard q(T) = (k/λ)(T/λ)^(k−1) against
// the required hazard rate for the given driver type.
func (tp *ThresholdPolicy) baseThreshold(req *Request, dt DriverType) float64 {
	k := req.WeibullShape
	lam := req.WeibullScale

	var rhs float64
	if len(tp.driverTypes) < 2 {
		denom := tp.quitPenalty - dt.BaseCost
		if denom <= 0 {
			// Quit penalty does not exceed the base cost: the hazard
			// balance has no positive solution, so match immediately.
			return minThresholdSec
		}
		rhs = 1.0 / denom
	} else {
		next := tp.driverTypes[1]
		denom := tp.quitPenalty - next.BaseCost
		if denom <= 0 {
			return minThresholdSec
		}
		lambdaSum := 0.0
		for _, other := range tp.driverTypes {
			if other.BaseCost < next.BaseCost {
				lambdaSum += other.ArrivalRate * (next.BaseCost - other.BaseCost)
			}
		}
		rhs = math.Max(0, (lambdaSum-1)/denom)
	}

	var threshold float64
	switch {
	case k == 1:
		// Exponential patience: constant hazard 1/λ.
		threshold = lam * rhs
	case rhs <= 0:
		threshold = 0
	default:
		threshold = lam * math.Pow(rhs*lam/k, 1.0/(k-1))
	}

	return clamp(threshold, minThresholdSec, maxThresholdSec)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
