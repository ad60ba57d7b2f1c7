package routing

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

func TestClientFallbackOnly(t *testing.T) {
	// Empty server URL: every query uses the haversine model at 40 km/h.
	c := NewClient(ClientOptions{FallbackSpeedKMH: 40})

	a := geo.Location{Lat: 18.5, Lon: 73.8}
	b := geo.Location{Lat: 18.6, Lon: 73.8}

	res := c.Route([]geo.Location{a, b})
	require.True(t, res.Fallback)

	meters := geo.HaversineMeters(a, b)
	assert.InDelta(t, meters, res.Distance, 1e-6)
	assert.InDelta(t, meters/(40*1000.0/3600.0), res.Duration, 1e-6)
	assert.Equal(t, uint64(1), c.FallbackCount())
}

func TestClientFallbackNotCached(t *testing.T) {
	c := NewClient(ClientOptions{})
	a := geo.Location{Lat: 18.5, Lon: 73.8}
	b := geo.Location{Lat: 18.6, Lon: 73.8}

	c.Duration(a, b)
	c.Duration(a, b)

	assert.Equal(t, uint64(2), c.FallbackCount(), "fallback results must never be cached")
	assert.Equal(t, 0, c.CacheStats().Size)
}

func TestClientRouteFromService(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":123.4,"distance":2500.0}]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{ServerURL: srv.URL})
	a := geo.Location{Lat: 18.5, Lon: 73.8}
	b := geo.Location{Lat: 18.6, Lon: 73.9}

	res := c.Route([]geo.Location{a, b})
	require.False(t, res.Fallback)
	assert.InDelta(t, 123.4, res.Duration, 1e-9)
	assert.InDelta(t, 2500.0, res.Distance, 1e-9)

	// OSRM takes lon-first coordinates.
	require.Contains(t, gotPath, "/route/v1/driving/")
	coords := strings.TrimPrefix(gotPath, "/route/v1/driving/")
	assert.True(t, strings.HasPrefix(coords, "73.8"), "coordinates must be lon-first, got %s", coords)

	// Second identical query is served from cache.
	c.Route([]geo.Location{a, b})
	stats := c.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(0), c.FallbackCount())
}

func TestClientServiceErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","message":"no route found"}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{ServerURL: srv.URL})
	res := c.Duration(geo.Location{Lat: 18.5, Lon: 73.8}, geo.Location{Lat: 18.6, Lon: 73.8})

	assert.Greater(t, res, 0.0)
	assert.Equal(t, uint64(1), c.FallbackCount())
	assert.Equal(t, 0, c.CacheStats().Size, "error responses must not be cached")
}

func TestClientMatrixFallback(t *testing.T) {
	c := NewClient(ClientOptions{})
	sources := []geo.Location{{Lat: 18.5, Lon: 73.8}}
	dests := []geo.Location{{Lat: 18.6, Lon: 73.8}, {Lat: 18.7, Lon: 73.8}}

	res := c.Matrix(sources, dests)
	require.True(t, res.Fallback)
	require.Len(t, res.Durations, 1)
	require.Len(t, res.Durations[0], 2)
	assert.Less(t, res.Durations[0][0], res.Durations[0][1])
}

func TestClientMatrixFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/table/v1/driving/")
		fmt.Fprint(w, `{"code":"Ok","durations":[[0,60],[60,0]],"distances":[[0,500],[500,0]]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{ServerURL: srv.URL})
	pts := []geo.Location{{Lat: 18.5, Lon: 73.8}, {Lat: 18.6, Lon: 73.8}}

	res := c.Matrix(pts, pts)
	require.False(t, res.Fallback)
	assert.Equal(t, 60.0, res.Durations[0][1])
}
