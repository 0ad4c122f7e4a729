package compressor

import (
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/driver"
)

// Config is fixed when the compressor is built. Read it back with
// Compressor.Config; there are no setters.
type Config struct {
	SurgeWarning     float64 // surge margin raising a warning
	SurgeCritical    float64 // surge margin forcing SURGE_PROTECTION
	StoneWallWarning float64

	MaxAccel float64 // RPM/s without a driver
	MaxDecel float64 // RPM/s without a driver
	Inertia  float64 // kg·m², overrides the driver's when positive

	AutoSpeed    bool // follow Map.Speed(flow, head) while running
	UseRealKappa bool // discharge from the real-gas heat capacity ratio
	LimitSpeed   bool // clamp target speed to the map's speed range

	HistoryCapacity int // operating-history ring size, 0 disables

	Startup  StartupProfile
	Shutdown ShutdownProfile // Type is replaced by the Stop argument
	Driver   *driver.Driver  // owned by the compressor once passed in
}

// DefaultConfig returns the thresholds and rates used when no option
// overrides them.
func DefaultConfig() Config {
	return Config{
		SurgeWarning:     0.15,
		SurgeCritical:    0.05,
		StoneWallWarning: 0.10,
		MaxAccel:         100,
		MaxDecel:         100,
		HistoryCapacity:  3600,
		Startup:          DefaultStartupProfile(),
	}
}

// Validate checks threshold ordering and rates.
func (c Config) Validate() error {
	const op = "compressor.Config"
	switch {
	case c.SurgeCritical < 0 || c.SurgeWarning < c.SurgeCritical:
		return curve.NewConfigError(op, "surge_warning", "need 0 <= critical (%g) <= warning (%g)",
			c.SurgeCritical, c.SurgeWarning)
	case c.StoneWallWarning < 0:
		return curve.NewConfigError(op, "stonewall_warning", "must not be negative, got %g", c.StoneWallWarning)
	case !(c.MaxAccel > 0) || !(c.MaxDecel > 0):
		return curve.NewConfigError(op, "max_accel", "rate limits must be positive")
	case c.HistoryCapacity < 0:
		return curve.NewConfigError(op, "history_capacity", "must not be negative, got %d", c.HistoryCapacity)
	}
	if c.Driver != nil {
		return c.Driver.Validate()
	}
	return nil
}

// Option adjusts a Config during New.
type Option func(*Config)

// WithSurgeThresholds sets the warning and critical surge margins.
func WithSurgeThresholds(warning, critical float64) Option {
	return func(c *Config) { c.SurgeWarning, c.SurgeCritical = warning, critical }
}

func WithStoneWallWarning(margin float64) Option {
	return func(c *Config) { c.StoneWallWarning = margin }
}

// WithRates sets the fixed accel/decel used when no driver is attached.
func WithRates(accel, decel float64) Option {
	return func(c *Config) { c.MaxAccel, c.MaxDecel = accel, decel }
}

func WithInertia(kgm2 float64) Option { return func(c *Config) { c.Inertia = kgm2 } }

func WithAutoSpeed(on bool) Option { return func(c *Config) { c.AutoSpeed = on } }

func WithRealKappa(on bool) Option { return func(c *Config) { c.UseRealKappa = on } }

func WithSpeedLimit(on bool) Option { return func(c *Config) { c.LimitSpeed = on } }

func WithHistory(capacity int) Option { return func(c *Config) { c.HistoryCapacity = capacity } }

func WithStartupProfile(p StartupProfile) Option { return func(c *Config) { c.Startup = p } }

func WithShutdownProfile(p ShutdownProfile) Option { return func(c *Config) { c.Shutdown = p } }

// WithDriver attaches a driver model. Without one, speed moves at the
// fixed rates.
func WithDriver(d *driver.Driver) Option { return func(c *Config) { c.Driver = d } }
