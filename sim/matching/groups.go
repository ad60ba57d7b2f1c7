package matching

import (
	"math/bits"
	"sort"
	"strings"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// maxEnumerationSize caps exhaustive subset enumeration per cluster. Larger
// clusters are chunked by capacity first.
const maxEnumerationSize = 8

// Group is one candidate passenger pool: requests from a single destination
// cluster, pairwise within the cluster radius, pooled toward the centroid of
// their destinations.
type Group struct {
	Requests    []*sim.Request
	Destination geo.Location
	key         string
}

// Key identifies the group by its sorted member ids.
func (g *Group) Key() string { return g.key }

// Size returns the number of pooled requests.
func (g *Group) Size() int { return len(g.Requests) }

// EnumerateGroups expands destination clusters into candidate groups of size
// 1..capacity. Single-link clustering can chain distant destinations, so
// every multi-member subset is rechecked pairwise against the radius.
func EnumerateGroups(clusters [][]*sim.Request, capacity int, radiusKm float64) []Group {
	var groups []Group
	for _, cluster := range clusters {
		if len(cluster) <= maxEnumerationSize {
			groups = append(groups, enumerateSubsets(cluster, capacity, radiusKm)...)
			continue
		}
		for _, chunk := range ChunkByCapacity(cluster, maxEnumerationSize) {
			groups = append(groups, enumerateSubsets(chunk, capacity, radiusKm)...)
		}
	}
	return groups
}

func enumerateSubsets(cluster []*sim.Request, capacity int, radiusKm float64) []Group {
	n := len(cluster)
	var groups []Group

	for mask := 1; mask < 1<<n; mask++ {
		size := bits.OnesCount(uint(mask))
		if size > capacity {
			continue
		}

		members := make([]*sim.Request, 0, size)
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				members = append(members, cluster[i])
			}
		}

		if size > 1 && !pairwiseCompatible(members, radiusKm) {
			continue
		}

		groups = append(groups, Group{
			Requests:    members,
			Destination: Centroid(members),
			key:         groupKey(members),
		})
	}

	return groups
}

func pairwiseCompatible(members []*sim.Request, radiusKm float64) bool {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if !compatibleDestinations(members[i].Destination, members[j].Destination, radiusKm) {
				return false
			}
		}
	}
	return true
}

func groupKey(members []*sim.Request) string {
	ids := make([]string, len(members))
	for i, r := range members {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, "+")
}
