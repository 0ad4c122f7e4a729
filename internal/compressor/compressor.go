// Package compressor is the operating state machine of a centrifugal
// compressor. Each Update advances start-up and shutdown ramps, checks the
// operating point against the surge, stonewall, speed and power limits,
// and fires events through an alarm.Notifier.
//
// A Compressor is not safe for concurrent use; the host serialises calls.
package compressor

import (
	"log/slog"
	"math"

	"github.com/talgya/compsim/internal/alarm"
	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/driver"
	"github.com/talgya/compsim/internal/fluid"
)

// OperatingPoint is what the host reports about the current flow through
// the machine.
type OperatingPoint struct {
	Inlet                fluid.State // nil when unknown
	Flow                 float64     // actual inlet m3/hr
	Head                 float64     // polytropic head, map head unit
	Efficiency           float64     // polytropic, percent
	Power                float64     // shaft power, kW
	DischargePressure    float64     // bara
	DischargeTemperature float64     // K
}

// Compressor owns a map, an optional driver and the operating state.
type Compressor struct {
	cfg      Config
	chart    chart.Map
	driver   *driver.Driver
	notifier alarm.Notifier
	history  *History

	state       State
	speed       float64
	targetSpeed float64
	op          OperatingPoint

	hours   float64
	simTime float64
	step    int64

	startupElapsed  float64
	shutdownElapsed float64
	shutdownStart   float64
	shutdown        ShutdownProfile
	tripPending     bool
	antisurge       bool

	surgeWarn, surgeCrit, surgeHit alarm.Latch
	stoneWarn                      alarm.Latch
	speedHigh, speedLow            alarm.Latch
	powerHigh                      alarm.Latch
}

// New builds a stopped compressor around m.
func New(m chart.Map, opts ...Option) (*Compressor, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver != nil && cfg.Inertia > 0 {
		cfg.Driver.Inertia = cfg.Inertia
	}
	if cfg.UseRealKappa {
		m.SetUseRealKappa(true)
	}

	c := &Compressor{
		cfg:    cfg,
		chart:  m,
		driver: cfg.Driver,
		state:  Stopped,
	}
	if cfg.HistoryCapacity > 0 {
		c.history = NewHistory(cfg.HistoryCapacity)
	}
	return c, nil
}

// Config returns the configuration the compressor was built with.
func (c *Compressor) Config() Config { return c.cfg }

func (c *Compressor) Chart() chart.Map        { return c.chart }
func (c *Compressor) Driver() *driver.Driver  { return c.driver }
func (c *Compressor) State() State            { return c.state }
func (c *Compressor) Speed() float64          { return c.speed }
func (c *Compressor) TargetSpeed() float64    { return c.targetSpeed }
func (c *Compressor) OperatingHours() float64 { return c.hours }
func (c *Compressor) Time() float64           { return c.simTime }
func (c *Compressor) Step() int64             { return c.step }

// OperatingPoint returns the last point given to SetOperatingPoint.
func (c *Compressor) OperatingPoint() OperatingPoint { return c.op }

// UseRealKappa reports whether discharge conditions should use the real-gas
// heat capacity ratio.
func (c *Compressor) UseRealKappa() bool { return c.cfg.UseRealKappa || c.chart.UseRealKappa() }

// Tripped reports a trip in progress or latched.
func (c *Compressor) Tripped() bool { return c.state == Tripped || c.tripPending }

// AntisurgeOpen reports whether the recycle valve is requested open.
func (c *Compressor) AntisurgeOpen() bool { return c.antisurge || c.state == SurgeProtection }

// AddListener registers l for every event.
func (c *Compressor) AddListener(l alarm.Listener) alarm.ID { return c.notifier.Add(l) }

// RemoveListener unregisters a listener.
func (c *Compressor) RemoveListener(id alarm.ID) bool { return c.notifier.Remove(id) }

// SetOperatingPoint records the host's view of the current flow.
func (c *Compressor) SetOperatingPoint(op OperatingPoint) { c.op = op }

// SetOperatingHours restores the running-hours counter.
func (c *Compressor) SetOperatingHours(h float64) { c.hours = math.Max(h, 0) }

// SetSpeed places the shaft at speed directly, for steady-state hosts.
func (c *Compressor) SetSpeed(speed float64) { c.speed = math.Max(speed, 0) }

// SetTargetSpeed changes the speed the running machine ramps toward and
// returns the value accepted.
func (c *Compressor) SetTargetSpeed(speed float64) float64 {
	c.targetSpeed = c.limitSpeed(speed)
	return c.targetSpeed
}

func (c *Compressor) limitSpeed(speed float64) float64 {
	speed = math.Max(speed, 0)
	if !c.cfg.LimitSpeed {
		return speed
	}
	if lo := c.chart.MinSpeed(); lo > 0 && speed < lo {
		speed = lo
	}
	if hi := c.chart.MaxSpeed(); hi > 0 && speed > hi {
		speed = hi
	}
	return speed
}

// Start begins the start-up ramp toward target.
func (c *Compressor) Start(target float64) error {
	if !c.state.CanStart() {
		return &TransitionError{Op: "start", From: c.state}
	}
	c.targetSpeed = c.limitSpeed(target)
	c.startupElapsed = 0
	c.setState(Starting)
	c.antisurge = c.cfg.Startup.RequireAntisurgeOpen
	return nil
}

// Stop begins a controlled run-down of the given type.
func (c *Compressor) Stop(t ShutdownType) error {
	switch c.state {
	case Stopped, Standby, Tripped, Shutdown, Depressurizing:
		return &TransitionError{Op: "stop", From: c.state}
	}
	c.beginShutdown(t)
	return nil
}

// EmergencyShutdown runs the machine down at the emergency rate and
// latches a trip. When the run-down completes the state is TRIPPED and
// AcknowledgeTrip is needed before a restart.
func (c *Compressor) EmergencyShutdown() {
	switch c.state {
	case Tripped:
		return
	case Stopped, Standby:
		c.speed = 0
		c.setState(Tripped)
		return
	}
	c.tripPending = true
	c.beginShutdown(EmergencyShutdown)
}

func (c *Compressor) beginShutdown(t ShutdownType) {
	c.shutdown = c.cfg.Shutdown
	c.shutdown.Type = t
	if t != c.cfg.Shutdown.Type {
		c.shutdown.RampRate = 0
	}
	if c.state != Shutdown && c.state != Depressurizing {
		c.shutdownStart = c.speed
		c.shutdownElapsed = 0
	}
	next := Shutdown
	if c.shutdown.Depressurize {
		next = Depressurizing
	}
	c.setState(next)
}

// AcknowledgeTrip moves TRIPPED to STANDBY. From any other state it does
// nothing and returns false.
func (c *Compressor) AcknowledgeTrip() bool {
	if c.state != Tripped {
		return false
	}
	if c.driver != nil {
		c.driver.ResetOverloadTimer()
	}
	c.setState(Standby)
	return true
}

// Reset returns the machine to rest in STOPPED without firing events.
// Operating hours and history are kept.
func (c *Compressor) Reset() {
	c.state = Stopped
	c.speed, c.targetSpeed = 0, 0
	c.startupElapsed, c.shutdownElapsed, c.shutdownStart = 0, 0, 0
	c.tripPending, c.antisurge = false, false
	for _, l := range []*alarm.Latch{&c.surgeWarn, &c.surgeCrit, &c.surgeHit, &c.stoneWarn,
		&c.speedHigh, &c.speedLow, &c.powerHigh} {
		l.Clear()
	}
	if c.driver != nil {
		c.driver.ResetOverloadTimer()
	}
}

// Update advances the machine by dt seconds.
func (c *Compressor) Update(dt float64) {
	if !(dt > 0) {
		return
	}
	c.simTime += dt
	c.step++
	if c.state.IsOperational() {
		c.hours += dt / 3600
	}

	switch c.state {
	case Starting:
		c.updateStartup(dt)
	case Shutdown, Depressurizing:
		c.updateShutdown(dt)
	case Running, SurgeProtection, SpeedLimited:
		c.checkSurge()
		c.checkStoneWall()
		c.checkSpeed()
		c.checkPower(dt)
		if c.state.IsOperational() {
			if c.cfg.AutoSpeed {
				c.updateAutoSpeed()
			}
			c.moveToward(c.targetSpeed, dt)
		}
	}

	if c.history != nil {
		c.history.Add(HistoryPoint{
			Time:        c.simTime,
			State:       c.state,
			Speed:       c.speed,
			Flow:        c.op.Flow,
			Head:        c.op.Head,
			Power:       c.op.Power,
			SurgeMargin: c.SurgeMargin(),
		})
	}
}

func (c *Compressor) updateStartup(dt float64) {
	c.startupElapsed += dt
	p := c.cfg.Startup
	c.moveToward(p.TargetAt(c.startupElapsed, c.targetSpeed), dt)

	if p.Complete(c.startupElapsed, c.speed, c.targetSpeed, 10) {
		c.antisurge = false
		c.setState(Running)
		c.emit(alarm.StartupComplete, map[string]float64{alarm.KeySpeed: c.speed})
	}
}

func (c *Compressor) updateShutdown(dt float64) {
	c.shutdownElapsed += dt
	p := c.shutdown
	c.moveToward(p.TargetAt(c.shutdownElapsed, c.shutdownStart), dt)
	if p.OpenAntisurge(c.shutdownElapsed) {
		c.antisurge = true
	}

	if p.Complete(c.speed) {
		c.speed = 0
		c.antisurge = false
		next := Stopped
		if c.tripPending {
			next = Tripped
			c.tripPending = false
		}
		c.setState(next)
		c.emit(alarm.ShutdownComplete, nil)
	}
}

// moveToward steps speed toward target with the driver's envelope, or the
// fixed rates when there is no driver.
func (c *Compressor) moveToward(target, dt float64) {
	diff := target - c.speed
	if math.Abs(diff) < 0.1 {
		c.speed = target
		return
	}
	if c.driver != nil {
		c.speed = c.driver.SpeedChange(c.speed, target, c.op.Power, dt)
		return
	}
	if diff > 0 {
		c.speed += math.Min(diff, c.cfg.MaxAccel*dt)
	} else {
		c.speed += math.Max(diff, -c.cfg.MaxDecel*dt)
	}
}

func (c *Compressor) updateAutoSpeed() {
	n, err := c.chart.Speed(c.op.Flow, c.op.Head)
	if err != nil || math.IsNaN(n) || n <= 0 {
		return
	}
	c.targetSpeed = c.limitSpeed(n)
}

// SurgeMargin is flow/surgeFlow − 1 at the current point; NaN without a
// surge line.
func (c *Compressor) SurgeMargin() float64 {
	return c.chart.DistanceToSurge(c.op.Head, c.op.Flow)
}

// StoneWallMargin is stonewallFlow/flow − 1 at the current point.
func (c *Compressor) StoneWallMargin() float64 {
	return c.chart.DistanceToStoneWall(c.op.Head, c.op.Flow)
}

func (c *Compressor) checkSurge() {
	margin := c.SurgeMargin()
	if math.IsNaN(margin) {
		return
	}
	values := map[string]float64{alarm.KeyMargin: margin}

	switch {
	case margin <= c.cfg.SurgeCritical:
		if c.surgeCrit.Set() {
			values[alarm.KeyCritical] = 1
			c.emit(alarm.SurgeApproach, values)
		}
		c.surgeWarn.Set()
		c.setState(SurgeProtection)
	case margin <= c.cfg.SurgeWarning:
		c.surgeCrit.Clear()
		if c.surgeWarn.Set() {
			c.emit(alarm.SurgeApproach, values)
		}
	default:
		c.surgeWarn.Clear()
		c.surgeCrit.Clear()
		if c.state == SurgeProtection {
			c.setState(c.overspeedState())
		}
	}

	if margin < 0 {
		if c.surgeHit.Set() {
			c.emit(alarm.SurgeOccurred, map[string]float64{alarm.KeyMargin: margin})
		}
	} else {
		c.surgeHit.Clear()
	}
}

func (c *Compressor) checkStoneWall() {
	margin := c.StoneWallMargin()
	if math.IsNaN(margin) {
		return
	}
	if margin <= c.cfg.StoneWallWarning {
		if c.stoneWarn.Set() {
			c.emit(alarm.StoneWallApproach, map[string]float64{alarm.KeyMargin: margin})
		}
		return
	}
	c.stoneWarn.Clear()
}

// overspeedState is the running state to return to when surge protection
// clears.
func (c *Compressor) overspeedState() State {
	if hi := c.chart.MaxSpeed(); hi > 0 && c.speed > hi {
		return SpeedLimited
	}
	return Running
}

func (c *Compressor) checkSpeed() {
	hi, lo := c.chart.MaxSpeed(), c.chart.MinSpeed()
	if hi > 0 && c.speed > hi {
		if c.speedHigh.Set() {
			c.emit(alarm.SpeedLimitExceeded, map[string]float64{
				alarm.KeySpeed: c.speed, alarm.KeyRatio: c.speed / hi,
			})
		}
		// Surge protection outranks the speed limit.
		if c.state != SurgeProtection {
			c.setState(SpeedLimited)
		}
	} else {
		c.speedHigh.Clear()
		if c.state == SpeedLimited {
			c.setState(Running)
		}
	}

	if lo > 0 && c.speed < lo && c.state.IsOperational() {
		if c.speedLow.Set() {
			c.emit(alarm.SpeedBelowMinimum, map[string]float64{
				alarm.KeySpeed: c.speed, alarm.KeyRatio: c.speed / lo,
			})
		}
	} else {
		c.speedLow.Clear()
	}
}

func (c *Compressor) checkPower(dt float64) {
	if c.driver == nil {
		return
	}
	limit := c.driver.MaxAvailablePowerAtSpeed(c.speed)
	if c.op.Power > limit {
		if c.powerHigh.Set() {
			c.emit(alarm.PowerLimitExceeded, map[string]float64{
				alarm.KeyPower: c.op.Power, alarm.KeyMaxPower: limit,
			})
		}
	} else {
		c.powerHigh.Clear()
	}

	if c.driver.CheckOverloadTrip(c.op.Power, dt) {
		slog.Warn("driver overload trip", "power_kw", c.op.Power,
			"overload_s", c.driver.OverloadTime(), "speed", c.speed)
		c.EmergencyShutdown()
	}
}

func (c *Compressor) setState(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	slog.Debug("compressor state change", "from", from, "to", s, "t", c.simTime)
	c.notifier.Dispatch(alarm.Event{
		Kind: alarm.StateChange,
		Time: c.simTime,
		Step: c.step,
		From: from.String(),
		To:   s.String(),
	})
}

func (c *Compressor) emit(kind alarm.Kind, values map[string]float64) {
	c.notifier.Dispatch(alarm.Event{Kind: kind, Time: c.simTime, Step: c.step, Values: values})
}

// History returns the recorded operating history, oldest first.
func (c *Compressor) History() []HistoryPoint {
	if c.history == nil {
		return nil
	}
	return c.history.Points()
}
