package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full simulation configuration. Loaded from YAML with strict
// field checking so typos fail loudly instead of silently using defaults.
type Config struct {
	Simulation  SimulationConfig `yaml:"simulation"`
	Region      RegionConfig     `yaml:"region"`
	OSRM        OSRMConfig       `yaml:"osrm"`
	Carpooling  CarpoolConfig    `yaml:"carpooling"`
	Costs       CostConfig       `yaml:"costs"`
	DriverTypes []DriverType     `yaml:"driver_types"`
	Requests    RequestConfig    `yaml:"requests"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

type SimulationConfig struct {
	Duration       float64 `yaml:"duration"` // seconds
	InitialDrivers int     `yaml:"initial_drivers"`
	MaxDrivers     int     `yaml:"max_drivers"`
	RandomSeed     int64   `yaml:"random_seed"`
}

type RegionConfig struct {
	Name   string       `yaml:"name"`
	Bounds RegionBounds `yaml:"bounds"`
}

type RegionBounds struct {
	LatMin float64 `yaml:"lat_min"`
	LatMax float64 `yaml:"lat_max"`
	LonMin float64 `yaml:"lon_min"`
	LonMax float64 `yaml:"lon_max"`
}

type OSRMConfig struct {
	ServerURL        string  `yaml:"server_url"`
	CacheSize        int     `yaml:"cache_size"`
	TimeoutSec       float64 `yaml:"timeout_sec"`
	FallbackSpeedKMH float64 `yaml:"fallback_speed_kmh"`
}

type CarpoolConfig struct {
	Capacity                int     `yaml:"capacity"`
	DetourMax               float64 `yaml:"detour_max"`
	ClusterRadiusKm         float64 `yaml:"destination_cluster_radius_km"`
	DynamicInsertionEnabled bool    `yaml:"dynamic_insertion_enabled"`
	CapacityPenaltyWeight   float64 `yaml:"capacity_penalty_weight"`
	PoolingBenefitFactor    float64 `yaml:"pooling_benefit_factor"`
}

type CostConfig struct {
	WaitingCostPerSec   float64 `yaml:"waiting_cost_per_sec"`
	QuitPenalty         float64 `yaml:"quit_penalty"`
	DetourPenaltyPerSec float64 `yaml:"detour_penalty_per_sec"`
}

type RequestConfig struct {
	ArrivalRate  float64 `yaml:"arrival_rate"` // requests/sec
	WeibullShape float64 `yaml:"weibull_shape"`
	WeibullScale float64 `yaml:"weibull_scale"`
}

type MetricsConfig struct {
	UpdateInterval  float64 `yaml:"update_interval"` // seconds between snapshots
	EnableStreaming bool    `yaml:"enable_streaming"`
	OutputFile      string  `yaml:"output_file"`
	HistorySize     int     `yaml:"history_size"`
}

// DefaultConfig returns the stock configuration: the Maharashtra region,
// three driver types, capacity-3 pooling.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Duration:       300,
			InitialDrivers: 50,
			MaxDrivers:     50,
			RandomSeed:     42,
		},
		Region: RegionConfig{
			Name: "Maharashtra, India",
			Bounds: RegionBounds{
				LatMin: 15.6,
				LatMax: 22.1,
				LonMin: 72.6,
				LonMax: 80.9,
			},
		},
		OSRM: OSRMConfig{
			ServerURL:        "http://127.0.0.1:5000",
			CacheSize:        10000,
			TimeoutSec:       5,
			FallbackSpeedKMH: 40,
		},
		Carpooling: CarpoolConfig{
			Capacity:                3,
			DetourMax:               1.5,
			ClusterRadiusKm:         1.0,
			DynamicInsertionEnabled: true,
			CapacityPenaltyWeight:   3.0,
			PoolingBenefitFactor:    0.3,
		},
		Costs: CostConfig{
			WaitingCostPerSec:   0.5,
			QuitPenalty:         100,
			DetourPenaltyPerSec: 2,
		},
		DriverTypes: []DriverType{
			{ID: 1, Name: "Fast Response", BaseCost: 20, ArrivalRate: 0.1, SpeedMultiplier: 1.2},
			{ID: 2, Name: "Normal", BaseCost: 15, ArrivalRate: 0.15, SpeedMultiplier: 1.0},
			{ID: 3, Name: "Economy", BaseCost: 10, ArrivalRate: 0.2, SpeedMultiplier: 0.9},
		},
		Requests: RequestConfig{
			ArrivalRate:  0.05,
			WeibullShape: 2.0,
			WeibullScale: 300,
		},
		Metrics: MetricsConfig{
			UpdateInterval:  10,
			EnableStreaming: true,
			OutputFile:      "metrics.json",
			HistorySize:     100,
		},
	}
}

// LoadConfig parses a YAML config file with strict field checking and
// validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefaultConfig writes the stock configuration as YAML.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects fatal configuration errors before any event is
// dispatched.
func (c *Config) Validate() error {
	if c.Simulation.Duration < 0 {
		return fmt.Errorf("simulation.duration must be >= 0, got %v", c.Simulation.Duration)
	}
	if c.Simulation.InitialDrivers < 0 {
		return fmt.Errorf("simulation.initial_drivers must be >= 0, got %d", c.Simulation.InitialDrivers)
	}
	if c.Simulation.MaxDrivers < 0 {
		return fmt.Errorf("simulation.max_drivers must be >= 0, got %d", c.Simulation.MaxDrivers)
	}

	b := c.Region.Bounds
	if b.LatMin == 0 && b.LatMax == 0 && b.LonMin == 0 && b.LonMax == 0 {
		return fmt.Errorf("region.bounds missing")
	}
	if b.LatMin >= b.LatMax || b.LonMin >= b.LonMax {
		return fmt.Errorf("region.bounds not ordered: lat [%v, %v], lon [%v, %v]",
			b.LatMin, b.LatMax, b.LonMin, b.LonMax)
	}

	if c.OSRM.CacheSize < 1 {
		return fmt.Errorf("osrm.cache_size must be >= 1, got %d", c.OSRM.CacheSize)
	}

	if c.Carpooling.Capacity <= 0 {
		return fmt.Errorf("carpooling.capacity must be > 0, got %d", c.Carpooling.Capacity)
	}
	if c.Carpooling.DetourMax <= 0 {
		return fmt.Errorf("carpooling.detour_max must be > 0, got %v", c.Carpooling.DetourMax)
	}
	if c.Carpooling.ClusterRadiusKm <= 0 {
		return fmt.Errorf("carpooling.destination_cluster_radius_km must be > 0, got %v",
			c.Carpooling.ClusterRadiusKm)
	}

	if c.Costs.WaitingCostPerSec < 0 || c.Costs.QuitPenalty < 0 || c.Costs.DetourPenaltyPerSec < 0 {
		return fmt.Errorf("costs must be >= 0")
	}

	if len(c.DriverTypes) == 0 {
		return fmt.Errorf("at least one driver type required")
	}
	seen := make(map[int]bool, len(c.DriverTypes))
	for _, dt := range c.DriverTypes {
		if seen[dt.ID] {
			return fmt.Errorf("duplicate driver type id %d", dt.ID)
		}
		seen[dt.ID] = true
		if dt.ArrivalRate < 0 {
			return fmt.Errorf("driver type %d: arrival_rate must be >= 0, got %v", dt.ID, dt.ArrivalRate)
		}
	}

	if c.Requests.ArrivalRate < 0 {
		return fmt.Errorf("requests.arrival_rate must be >= 0, got %v", c.Requests.ArrivalRate)
	}
	if c.Requests.WeibullShape <= 0 || c.Requests.WeibullScale <= 0 {
		return fmt.Errorf("requests weibull shape/scale must be > 0, got shape=%v scale=%v",
			c.Requests.WeibullShape, c.Requests.WeibullScale)
	}

	if c.Metrics.UpdateInterval < 0 {
		return fmt.Errorf("metrics.update_interval must be >= 0, got %v", c.Metrics.UpdateInterval)
	}

	return nil
}

// DriverTypeByID finds a configured driver type.
func (c *Config) DriverTypeByID(id int) (*DriverType, bool) {
	for i := range c.DriverTypes {
		if c.DriverTypes[i].ID == id {
			return &c.DriverTypes[i], true
		}
	}
	return nil, false
}
