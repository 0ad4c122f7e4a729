// Package config loads compsim.ini. Every key has a default so a missing
// file still yields a runnable simulation; a few deployment settings can
// also come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/driver"
	"github.com/talgya/compsim/internal/fluid"
	"github.com/talgya/compsim/internal/plant"
)

// Environment overrides.
const (
	EnvAdminKey    = "COMPSIM_ADMIN_KEY"
	EnvRelayKey    = "COMPSIM_RELAY_KEY"
	EnvDB          = "COMPSIM_DB"
	EnvPort        = "COMPSIM_PORT"
	EnvCORSOrigins = "CORS_ORIGINS"
)

// Config is the whole host configuration.
type Config struct {
	Server     Server
	DBPath     string
	MapPath    string
	Simulation Simulation
	Compressor Compressor
	Driver     Driver
	Plant      plant.Config
}

type Server struct {
	Port        int
	AdminKey    string `json:"-"` // empty disables POST endpoints
	RelayKey    string `json:"-"` // empty leaves the event stream open
	CORSOrigins []string
	RateLimit   int // admin requests per minute per client
}

type Simulation struct {
	Interval    time.Duration // wall time per tick at speed 1
	Speed       float64       // tick rate multiplier, 0 pauses
	Dt          float64       // simulated seconds per tick
	AutoStart   bool
	TargetSpeed float64 // RPM for the automatic start
	SaveEvery   uint64  // ticks between history flushes
}

type Compressor struct {
	SurgeWarning     float64
	SurgeCritical    float64
	StoneWallWarning float64
	AutoSpeed        bool
	LimitSpeed       bool
	RealKappa        bool
	History          int
}

// Driver is empty when Type is "", meaning the fixed ramp rates apply.
type Driver struct {
	Type              string
	RatedPower        float64
	RatedSpeed        float64
	MinSpeed          float64
	MaxSpeed          float64
	Inertia           float64
	OverloadTripDelay float64
}

// Load reads path, falling back to defaults for absent keys or an absent
// file, then applies environment overrides.
func Load(path string) (Config, error) {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	cfg := fromFile(file)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads configuration from ini text.
func Parse(data []byte) (Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg := fromFile(file)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromFile(file *ini.File) Config {
	srv := file.Section("server")
	sim := file.Section("simulation")
	cmp := file.Section("compressor")
	drv := file.Section("driver")
	gas := file.Section("gas")
	pl := file.Section("plant")

	defPlant := plant.DefaultConfig()
	defComp := compressor.DefaultConfig()

	return Config{
		Server: Server{
			Port:        srv.Key("port").MustInt(8080),
			AdminKey:    srv.Key("admin_key").String(),
			RelayKey:    srv.Key("relay_key").String(),
			CORSOrigins: splitList(srv.Key("cors_origins").String()),
			RateLimit:   srv.Key("rate_limit").MustInt(60),
		},
		DBPath:  file.Section("storage").Key("db").MustString("data/compsim.db"),
		MapPath: file.Section("map").Key("path").MustString("maps/sample.json"),
		Simulation: Simulation{
			Interval:    time.Duration(sim.Key("interval_ms").MustInt(1000)) * time.Millisecond,
			Speed:       sim.Key("speed").MustFloat64(1),
			Dt:          sim.Key("dt").MustFloat64(1),
			AutoStart:   sim.Key("auto_start").MustBool(true),
			TargetSpeed: sim.Key("target_speed").MustFloat64(10453),
			SaveEvery:   sim.Key("save_every").MustUint64(60),
		},
		Compressor: Compressor{
			SurgeWarning:     cmp.Key("surge_warning").MustFloat64(defComp.SurgeWarning),
			SurgeCritical:    cmp.Key("surge_critical").MustFloat64(defComp.SurgeCritical),
			StoneWallWarning: cmp.Key("stonewall_warning").MustFloat64(defComp.StoneWallWarning),
			AutoSpeed:        cmp.Key("auto_speed").MustBool(false),
			LimitSpeed:       cmp.Key("limit_speed").MustBool(true),
			RealKappa:        cmp.Key("real_kappa").MustBool(false),
			History:          cmp.Key("history").MustInt(defComp.HistoryCapacity),
		},
		Driver: Driver{
			Type:              drv.Key("type").MustString("vfd_motor"),
			RatedPower:        drv.Key("rated_power").MustFloat64(6000),
			RatedSpeed:        drv.Key("rated_speed").MustFloat64(11683),
			MinSpeed:          drv.Key("min_speed").MustFloat64(0),
			MaxSpeed:          drv.Key("max_speed").MustFloat64(13500),
			Inertia:           drv.Key("inertia").MustFloat64(100),
			OverloadTripDelay: drv.Key("overload_trip_delay").MustFloat64(10),
		},
		Plant: plant.Config{
			Gas: fluid.IdealGas{
				MolarMassKg: gas.Key("molar_mass").MustFloat64(defPlant.Gas.MolarMassKg*1000) / 1000,
				PressureBar: gas.Key("pressure").MustFloat64(defPlant.Gas.PressureBar),
				TempK:       gas.Key("temperature").MustFloat64(defPlant.Gas.TempK),
				Z:           gas.Key("z").MustFloat64(defPlant.Gas.Z),
				KappaIdeal:  gas.Key("kappa").MustFloat64(defPlant.Gas.KappaIdeal),
				KappaReal:   gas.Key("kappa_real").MustFloat64(defPlant.Gas.KappaReal),
			},
			StaticHead:  pl.Key("static_head").MustFloat64(defPlant.StaticHead),
			Resistance:  pl.Key("resistance").MustFloat64(defPlant.Resistance),
			Disturbance: pl.Key("disturbance").MustFloat64(defPlant.Disturbance),
			Period:      pl.Key("period").MustFloat64(defPlant.Period),
			RecycleFlow: pl.Key("recycle_flow").MustFloat64(defPlant.RecycleFlow),
			Seed:        pl.Key("seed").MustInt64(defPlant.Seed),
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAdminKey); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv(EnvRelayKey); v != "" {
		cfg.Server.RelayKey = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, splitList(v)...)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the host settings; the compressor, driver and plant
// settings are checked by their own constructors as well.
func (c Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	case c.Simulation.Interval <= 0:
		return fmt.Errorf("config: simulation interval must be positive")
	case !(c.Simulation.Dt > 0):
		return fmt.Errorf("config: simulation dt must be positive, got %g", c.Simulation.Dt)
	case c.Simulation.Speed < 0:
		return fmt.Errorf("config: simulation speed must not be negative, got %g", c.Simulation.Speed)
	}
	if err := c.Plant.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.NewDriver(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewDriver builds the configured driver, or nil when none is configured.
func (c Config) NewDriver() (*driver.Driver, error) {
	if c.Driver.Type == "" || c.Driver.Type == "none" {
		return nil, nil
	}
	t, err := driver.ParseType(c.Driver.Type)
	if err != nil {
		return nil, err
	}
	d := driver.New(t, c.Driver.RatedPower)
	d.RatedSpeed = c.Driver.RatedSpeed
	d.MinSpeed = c.Driver.MinSpeed
	d.MaxSpeed = c.Driver.MaxSpeed
	if c.Driver.Inertia > 0 {
		d.Inertia = c.Driver.Inertia
	}
	d.OverloadTripDelay = c.Driver.OverloadTripDelay
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// CompressorOptions turns the [compressor] and [driver] sections into
// options for compressor.New. It builds a fresh driver on every call.
func (c Config) CompressorOptions() ([]compressor.Option, error) {
	opts := []compressor.Option{
		compressor.WithSurgeThresholds(c.Compressor.SurgeWarning, c.Compressor.SurgeCritical),
		compressor.WithStoneWallWarning(c.Compressor.StoneWallWarning),
		compressor.WithAutoSpeed(c.Compressor.AutoSpeed),
		compressor.WithSpeedLimit(c.Compressor.LimitSpeed),
		compressor.WithRealKappa(c.Compressor.RealKappa),
		compressor.WithHistory(c.Compressor.History),
	}
	d, err := c.NewDriver()
	if err != nil {
		return nil, err
	}
	if d != nil {
		opts = append(opts, compressor.WithDriver(d))
	}
	return opts, nil
}
