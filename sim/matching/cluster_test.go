package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/geo"
)

func reqTo(id string, dest geo.Location) *sim.Request {
	return &sim.Request{ID: id, Destination: dest}
}

func TestClusterByDestinationGroupsNearby(t *testing.T) {
	near1 := geo.Location{Lat: 18.500, Lon: 73.800}
	near2 := geo.Location{Lat: 18.505, Lon: 73.800} // ~0.55 km away
	far := geo.Location{Lat: 19.500, Lon: 73.800}

	clusters := ClusterByDestination([]*sim.Request{
		reqTo("a", near1), reqTo("b", far), reqTo("c", near2),
	}, 1.0)

	require.Len(t, clusters, 2)
	require.Len(t, clusters[0], 2, "a and c share a cluster")
	assert.Equal(t, "a", clusters[0][0].ID)
	assert.Equal(t, "c", clusters[0][1].ID)
	assert.Equal(t, "b", clusters[1][0].ID)
}

func TestClusterByDestinationTransitiveChaining(t *testing.T) {
	// a-b and b-c are within radius, a-c is not: single-link still chains them.
	a := reqTo("a", geo.Location{Lat: 18.500, Lon: 73.8})
	b := reqTo("b", geo.Location{Lat: 18.508, Lon: 73.8})
	c := reqTo("c", geo.Location{Lat: 18.516, Lon: 73.8})

	clusters := ClusterByDestination([]*sim.Request{a, b, c}, 1.0)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 3)
}

func TestClusterByDestinationEmpty(t *testing.T) {
	assert.Nil(t, ClusterByDestination(nil, 1.0))
}

func TestCentroid(t *testing.T) {
	got := Centroid([]*sim.Request{
		reqTo("a", geo.Location{Lat: 18.0, Lon: 73.0}),
		reqTo("b", geo.Location{Lat: 19.0, Lon: 74.0}),
	})
	assert.InDelta(t, 18.5, got.Lat, 1e-12)
	assert.InDelta(t, 73.5, got.Lon, 1e-12)
}

func TestChunkByCapacity(t *testing.T) {
	var cluster []*sim.Request
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		cluster = append(cluster, reqTo(id, geo.Location{}))
	}

	chunks := ChunkByCapacity(cluster, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 1)
}
