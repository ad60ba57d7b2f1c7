// Package routing owns travel-time estimation for the carpool simulator:
// an OSRM map-service client with a bounded cache and haversine fallback,
// and the routing engine (pickup-order TSP, detour ratios, cost splitting,
// trial insertion) built on top of it.
package routing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carpool-sim/carpool-sim/sim/geo"
)

// RouteResult is the outcome of a route query. Fallback marks results
// estimated by the haversine model rather than the map service.
type RouteResult struct {
	Duration float64         `json:"duration"` // seconds
	Distance float64         `json:"distance"` // meters
	Geometry json.RawMessage `json:"geometry,omitempty"`
	Fallback bool            `json:"fallback,omitempty"`
}

// MatrixResult is the outcome of a table query.
type MatrixResult struct {
	Durations [][]float64 `json:"durations"`
	Distances [][]float64 `json:"distances,omitempty"`
	Fallback  bool        `json:"fallback,omitempty"`
}

// ClientOptions configures a map-service client.
type ClientOptions struct {
	ServerURL        string
	CacheSize        int
	Timeout          time.Duration
	FallbackSpeedKMH float64
}

// Client queries an OSRM-compatible map service with a write-through FIFO
// cache keyed by 6-decimal-rounded coordinates. On transport failure or a
// non-"Ok" response it degrades to a haversine estimate at the configured
// average speed; fallback results are marked, counted, and never cached.
//
// Safe for concurrent use by multiple simulator instances.
type Client struct {
	serverURL        string
	httpClient       *http.Client
	cache            *routeCache
	fallbackSpeedKMH float64

	fallbacks atomic.Uint64
}

// NewClient creates a map-service client. An empty server URL disables HTTP
// entirely and every query uses the haversine model (useful for offline runs
// and tests).
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	speed := opts.FallbackSpeedKMH
	if speed <= 0 {
		speed = 40.0
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	return &Client{
		serverURL:        strings.TrimRight(opts.ServerURL, "/"),
		httpClient:       &http.Client{Timeout: timeout},
		cache:            newRouteCache(cacheSize),
		fallbackSpeedKMH: speed,
	}
}

// Duration returns the travel duration between two points in seconds.
func (c *Client) Duration(a, b geo.Location) float64 {
	return c.Route([]geo.Location{a, b}).Duration
}

// Distance returns the travel distance between two points in meters.
func (c *Client) Distance(a, b geo.Location) float64 {
	return c.Route([]geo.Location{a, b}).Distance
}

// Route returns duration, distance and optional geometry for a multi-waypoint
// route. Results from the map service are cached; fallback results are not.
func (c *Client) Route(points []geo.Location) RouteResult {
	if len(points) < 2 {
		return RouteResult{}
	}

	key := cacheKey(points)
	if res, ok := c.cache.get(key); ok {
		return res
	}

	if c.serverURL == "" {
		return c.fallbackRoute(points)
	}

	res, err := c.fetchRoute(points)
	if err != nil {
		logrus.Warnf("map service route query failed, using haversine fallback: %v", err)
		return c.fallbackRoute(points)
	}

	c.cache.put(key, res)
	return res
}

// Matrix returns pairwise durations (and distances when the service provides
// them) between sources and destinations.
func (c *Client) Matrix(sources, destinations []geo.Location) MatrixResult {
	if len(sources) == 0 || len(destinations) == 0 {
		return MatrixResult{}
	}

	if c.serverURL == "" {
		return c.fallbackMatrix(sources, destinations)
	}

	res, err := c.fetchMatrix(sources, destinations)
	if err != nil {
		logrus.Warnf("map service table query failed, using haversine fallback: %v", err)
		return c.fallbackMatrix(sources, destinations)
	}
	return res
}

// CacheStats returns cache hit/miss counters for diagnostics.
func (c *Client) CacheStats() CacheStats {
	return c.cache.stats()
}

// FallbackCount returns how many queries were answered by the haversine model.
func (c *Client) FallbackCount() uint64 {
	return c.fallbacks.Load()
}

// ClearCache drops all cached routes and resets cache counters.
func (c *Client) ClearCache() {
	c.cache.clear()
}

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64         `json:"duration"`
		Distance float64         `json:"distance"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Durations [][]float64 `json:"durations"`
	Distances [][]float64 `json:"distances"`
}

func (c *Client) fetchRoute(points []geo.Location) (RouteResult, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=false&geometries=geojson&steps=false",
		c.serverURL, coordPath(points))

	var parsed osrmRouteResponse
	if err := c.getJSON(url, &parsed); err != nil {
		return RouteResult{}, err
	}
	if parsed.Code != "Ok" {
		return RouteResult{}, fmt.Errorf("map service error: %s", parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return RouteResult{}, fmt.Errorf("map service returned no routes")
	}

	r := parsed.Routes[0]
	return RouteResult{Duration: r.Duration, Distance: r.Distance, Geometry: r.Geometry}, nil
}

func (c *Client) fetchMatrix(sources, destinations []geo.Location) (MatrixResult, error) {
	all := append(append([]geo.Location{}, sources...), destinations...)

	srcIdx := make([]string, len(sources))
	for i := range sources {
		srcIdx[i] = fmt.Sprintf("%d", i)
	}
	dstIdx := make([]string, len(destinations))
	for i := range destinations {
		dstIdx[i] = fmt.Sprintf("%d", len(sources)+i)
	}

	url := fmt.Sprintf("%s/table/v1/driving/%s?sources=%s&destinations=%s&annotations=duration,distance",
		c.serverURL, coordPath(all), strings.Join(srcIdx, ";"), strings.Join(dstIdx, ";"))

	var parsed osrmTableResponse
	if err := c.getJSON(url, &parsed); err != nil {
		return MatrixResult{}, err
	}
	if parsed.Code != "Ok" {
		return MatrixResult{}, fmt.Errorf("map service error: %s", parsed.Message)
	}

	return MatrixResult{Durations: parsed.Durations, Distances: parsed.Distances}, nil
}

func (c *Client) getJSON(url string, out interface{}) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("map service returned HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) fallbackRoute(points []geo.Location) RouteResult {
	c.fallbacks.Add(1)

	totalMeters := 0.0
	for i := 0; i < len(points)-1; i++ {
		totalMeters += geo.HaversineMeters(points[i], points[i+1])
	}
	speedMPS := c.fallbackSpeedKMH * 1000.0 / 3600.0

	return RouteResult{
		Duration: totalMeters / speedMPS,
		Distance: totalMeters,
		Fallback: true,
	}
}

func (c *Client) fallbackMatrix(sources, destinations []geo.Location) MatrixResult {
	durations := make([][]float64, len(sources))
	distances := make([][]float64, len(sources))
	for i, src := range sources {
		durations[i] = make([]float64, len(destinations))
		distances[i] = make([]float64, len(destinations))
		for j, dst := range destinations {
			route := c.fallbackRoute([]geo.Location{src, dst})
			durations[i][j] = route.Duration
			distances[i][j] = route.Distance
		}
	}
	return MatrixResult{Durations: durations, Distances: distances, Fallback: true}
}

// coordPath renders waypoints the way OSRM expects them: lon-first,
// semicolon-separated.
func coordPath(points []geo.Location) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%f,%f", p.Lon, p.Lat)
	}
	return strings.Join(parts, ";")
}

func cacheKey(points []geo.Location) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = p.Key()
	}
	return strings.Join(parts, ";")
}
