// Package matching provides the two matching policies: the FCFS baseline and
// the set-partitioning optimal matcher. Both are pure planners over a
// borrowed world view; the kernel materializes their plans.
package matching

import (
	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// ClusterByDestination groups requests into destination clusters by
// single-link connected components: two requests join when their destinations
// lie within the cluster radius. Clusters preserve input order and are
// ordered by their first member, so the output is deterministic for a given
// input order.
func ClusterByDestination(requests []*sim.Request, radiusKm float64) [][]*sim.Request {
	n := len(requests)
	if n == 0 {
		return nil
	}

	eps := radiusKm / geo.KmPerDegree

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if geo.DegreeDistance(requests[i].Destination, requests[j].Destination) <= eps {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]*sim.Request)
	var order []int
	for i, r := range requests {
		root := find(i)
		if _, seen := byRoot[root]; !seen {
			order = append(order, root)
		}
		byRoot[root] = append(byRoot[root], r)
	}

	clusters := make([][]*sim.Request, 0, len(order))
	for _, root := range order {
		clusters = append(clusters, byRoot[root])
	}
	return clusters
}

// Centroid returns the mean destination of a request set.
func Centroid(requests []*sim.Request) geo.Location {
	if len(requests) == 0 {
		return geo.Location{}
	}
	var lat, lon float64
	for _, r := range requests {
		lat += r.Destination.Lat
		lon += r.Destination.Lon
	}
	n := float64(len(requests))
	return geo.Location{Lat: lat / n, Lon: lon / n}
}

// ChunkByCapacity splits a cluster into consecutive chunks of at most
// capacity members. Used to keep group enumeration tractable for oversized
// clusters.
func ChunkByCapacity(cluster []*sim.Request, capacity int) [][]*sim.Request {
	if capacity <= 0 {
		capacity = 1
	}
	var chunks [][]*sim.Request
	for start := 0; start < len(cluster); start += capacity {
		end := start + capacity
		if end > len(cluster) {
			end = len(cluster)
		}
		chunks = append(chunks, cluster[start:end])
	}
	return chunks
}

// compatibleDestinations reports whether two destinations are close enough to
// share a pool, on the great-circle distance.
func compatibleDestinations(a, b geo.Location, radiusKm float64) bool {
	return geo.HaversineKm(a, b) <= radiusKm
}
