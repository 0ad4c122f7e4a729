package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/compsim/internal/alarm"
	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/driver"
	"github.com/talgya/compsim/internal/plant"
	"github.com/talgya/compsim/internal/telemetry"
)

// maxRecentEvents bounds the in-memory event ring.
const maxRecentEvents = 1000

// maxPendingEvents bounds events waiting for the database.
const maxPendingEvents = 10 * maxRecentEvents

// Event categories.
const (
	CategoryAlarm    = "alarm"
	CategoryState    = "state"
	CategoryOperator = "operator"
)

// Event is a logged occurrence: an alarm from the compressor, a state
// change, or an operator command.
type Event struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	RunID       uuid.UUID          `json:"run_id" db:"run_id"`
	Tick        uint64             `json:"tick" db:"tick"`
	Time        float64            `json:"time" db:"sim_time"`
	Kind        string             `json:"kind" db:"kind"`
	Category    string             `json:"category" db:"category"`
	Description string             `json:"description" db:"description"`
	Values      map[string]float64 `json:"values,omitempty" db:"-"`
}

// Simulation owns the compressor and its plant. All access goes through
// its methods, which serialise on one mutex.
type Simulation struct {
	RunID uuid.UUID

	mu       sync.Mutex
	comp     *compressor.Compressor
	proc     *plant.Process
	lastTick uint64

	events   []Event // recent, oldest first
	pending  []Event // not yet taken by DrainEvents
	schedule []Scheduled

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	stats Stats
}

// Stats are running totals for the current run.
type Stats struct {
	Alarms       int     `json:"alarms"`
	Surges       int     `json:"surges"`
	Trips        int     `json:"trips"`
	Commands     int     `json:"commands"`
	EnergyKWh    float64 `json:"energy_kwh"`
	PeakPowerKW  float64 `json:"peak_power_kw"`
	MinSurgeDist float64 `json:"min_surge_margin"` // while RUNNING, 0 until seen

	marginSeen bool
}

// NewSimulation wires c to p and starts listening for compressor events.
func NewSimulation(c *compressor.Compressor, p *plant.Process) *Simulation {
	s := &Simulation{
		RunID: uuid.New(),
		comp:  c,
		proc:  p,
		subs:  make(map[int]chan Event),
	}
	c.AddListener(alarm.ListenerFunc(s.onAlarm))
	s.solve()
	return s
}

// onAlarm runs inside compressor calls, with s.mu already held.
func (s *Simulation) onAlarm(a alarm.Event) {
	e := Event{
		ID:     uuid.New(),
		RunID:  s.RunID,
		Tick:   s.lastTick,
		Time:   a.Time,
		Kind:   a.Kind.String(),
		Values: a.Values,
	}
	switch a.Kind {
	case alarm.StateChange:
		e.Category = CategoryState
		e.Description = fmt.Sprintf("%s -> %s", a.From, a.To)
		if tripStarted(a, s.comp.Tripped()) {
			s.stats.Trips++
		}
	case alarm.StartupComplete, alarm.ShutdownComplete:
		e.Category = CategoryState
		e.Description = a.String()
	default:
		e.Category = CategoryAlarm
		e.Description = a.String()
		s.stats.Alarms++
		if a.Kind == alarm.SurgeOccurred {
			s.stats.Surges++
		}
		slog.Warn("compressor alarm", "kind", a.Kind, "t", a.Time, "values", a.Values)
	}
	s.record(e)
}

// tripStarted reports whether a state change begins a trip: a run-down
// with a trip latched, or a trip straight from rest.
func tripStarted(a alarm.Event, tripped bool) bool {
	switch a.To {
	case compressor.Shutdown.String(), compressor.Depressurizing.String():
		return tripped && a.From != compressor.Shutdown.String() && a.From != compressor.Depressurizing.String()
	case compressor.Tripped.String():
		return a.From == compressor.Stopped.String() || a.From == compressor.Standby.String()
	}
	return false
}

func (s *Simulation) record(e Event) {
	s.events = append(s.events, e)
	if len(s.events) > maxRecentEvents {
		s.events = slices.Clone(s.events[len(s.events)-maxRecentEvents:])
	}
	s.pending = append(s.pending, e)
	s.trimPending()
	s.publish(e)
}

// trimPending drops the oldest unsaved events beyond maxPendingEvents.
func (s *Simulation) trimPending() {
	if n := len(s.pending) - maxPendingEvents; n > 0 {
		slog.Warn("dropping unsaved events", "count", n)
		s.pending = slices.Clone(s.pending[n:])
	}
}

// solve refreshes the operating point from the plant at the current speed.
func (s *Simulation) solve() {
	op, err := s.proc.Solve(s.comp.Chart(), s.comp.Speed(), s.comp.AntisurgeOpen())
	if err != nil {
		slog.Warn("operating point solve failed", "speed", s.comp.Speed(), "error", err)
		return
	}
	s.comp.SetOperatingPoint(op)
}

// Tick advances the plant and compressor by dt seconds. It is the engine's
// OnTick callback.
func (s *Simulation) Tick(tick uint64, dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = tick

	s.runSchedule()
	s.solve()
	s.comp.Update(dt)
	s.proc.Advance(dt)

	op := s.comp.OperatingPoint()
	if op.Power > 0 {
		s.stats.EnergyKWh += op.Power * dt / 3600
		s.stats.PeakPowerKW = math.Max(s.stats.PeakPowerKW, op.Power)
	}
	if s.comp.State() == compressor.Running {
		if m := s.comp.SurgeMargin(); !math.IsNaN(m) && (!s.stats.marginSeen || m < s.stats.MinSurgeDist) {
			s.stats.MinSurgeDist = m
			s.stats.marginSeen = true
		}
	}
}

// LogHour writes an hourly summary. It is the engine's OnHour callback.
func (s *Simulation) LogHour(tick uint64) {
	st := s.Status()
	stats := s.Stats()
	slog.Info("hourly report",
		"tick", tick,
		"time", FormatSimTime(st.Time),
		"state", st.State,
		"speed", fmt.Sprintf("%.0f", st.Speed),
		"flow", humanize.CommafWithDigits(st.Flow, 0),
		"power_kw", humanize.CommafWithDigits(st.Power, 0),
		"energy", humanize.SIWithDigits(stats.EnergyKWh*1000, 2, "Wh"),
		"hours", humanize.CommafWithDigits(st.OperatingHours, 1),
		"alarms", stats.Alarms,
		"trips", stats.Trips,
	)
}

// CurrentTick returns the most recently processed tick.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Status is a consistent view of the machine at one tick.
type Status struct {
	RunID           uuid.UUID        `json:"run_id"`
	Tick            uint64           `json:"tick"`
	Time            float64          `json:"time"`
	State           compressor.State `json:"state"`
	Speed           float64          `json:"speed"`
	TargetSpeed     float64          `json:"target_speed"`
	OperatingHours  float64          `json:"operating_hours"`
	Tripped         bool             `json:"tripped"`
	AntisurgeOpen   bool             `json:"antisurge_open"`
	Flow            float64          `json:"flow"`
	Head            float64          `json:"head"`
	HeadUnit        chart.HeadUnit   `json:"head_unit"`
	Efficiency      float64          `json:"efficiency"`
	Power           float64          `json:"power"`
	SurgeMargin     float64          `json:"surge_margin"` // 0 without a limit line
	StoneWallMargin float64          `json:"stonewall_margin"`
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Status returns the current machine status.
func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.comp
	op := c.OperatingPoint()
	return Status{
		RunID:           s.RunID,
		Tick:            s.lastTick,
		Time:            c.Time(),
		State:           c.State(),
		Speed:           c.Speed(),
		TargetSpeed:     c.TargetSpeed(),
		OperatingHours:  c.OperatingHours(),
		Tripped:         c.Tripped(),
		AntisurgeOpen:   c.AntisurgeOpen(),
		Flow:            op.Flow,
		Head:            op.Head,
		HeadUnit:        c.Chart().HeadUnit(),
		Efficiency:      op.Efficiency,
		Power:           op.Power,
		SurgeMargin:     finite(c.SurgeMargin()),
		StoneWallMargin: finite(c.StoneWallMargin()),
	}
}

// Stats returns the run totals.
func (s *Simulation) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Telemetry returns the compressor's telemetry snapshot.
func (s *Simulation) Telemetry() telemetry.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comp.Telemetry()
}

// History returns the compressor's operating history after the given
// simulation time, oldest first.
func (s *Simulation) History(after float64) []compressor.HistoryPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	pts := s.comp.History()
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Time > after })
	return pts[i:]
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(len(s.events)-n, 0)
	return slices.Clone(s.events[start:])
}

// DrainEvents returns the events recorded since the last call.
func (s *Simulation) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// RequeueEvents puts drained events back ahead of anything recorded since,
// so a failed save can be retried.
func (s *Simulation) RequeueEvents(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(slices.Clone(events), s.pending...)
	s.trimPending()
}

// OperatingHours returns the running-hours counter.
func (s *Simulation) OperatingHours() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comp.OperatingHours()
}

// Map returns the compressor map. Maps are not modified after start-up, so
// callers may read it without the simulation lock.
func (s *Simulation) Map() chart.Map { return s.comp.Chart() }

// Driver returns a copy of the driver settings, or nil without a driver.
func (s *Simulation) Driver() *driver.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.comp.Driver()
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// ── Operator commands ─────────────────────────────────────────────────

// Command actions.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionESD    = "esd"
	ActionAck    = "ack"
	ActionReset  = "reset"
	ActionTarget = "target"
)

// ErrUnknownAction is returned for a command action not listed above.
var ErrUnknownAction = errors.New("engine: unknown command action")

// Command is an operator instruction.
type Command struct {
	Action string  `json:"action"`
	Speed  float64 `json:"speed,omitempty"` // RPM, for start and target
	Type   string  `json:"type,omitempty"`  // shutdown type, for stop
}

// Scheduled is a command applied once simulated time reaches At.
type Scheduled struct {
	At      float64 `json:"at"` // simulation seconds
	Command Command `json:"command"`
}

// Apply executes cmd and logs it as an operator event.
func (s *Simulation) Apply(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(cmd)
}

func (s *Simulation) apply(cmd Command) error {
	c := s.comp
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	var err error
	desc := action

	switch action {
	case ActionStart:
		err = c.Start(cmd.Speed)
		desc = fmt.Sprintf("start to %.0f rpm", cmd.Speed)
	case ActionStop:
		t := compressor.NormalShutdown
		if cmd.Type != "" {
			if t, err = compressor.ParseShutdownType(cmd.Type); err != nil {
				break
			}
		}
		err = c.Stop(t)
		desc = fmt.Sprintf("%s stop", t)
	case ActionESD:
		c.EmergencyShutdown()
		desc = "emergency shutdown"
	case ActionAck:
		if !c.AcknowledgeTrip() {
			desc = "acknowledge ignored, no trip latched"
		} else {
			desc = "trip acknowledged"
		}
	case ActionReset:
		c.Reset()
		desc = "reset"
	case ActionTarget:
		got := c.SetTargetSpeed(cmd.Speed)
		desc = fmt.Sprintf("target speed %.0f rpm", got)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownAction, cmd.Action)
	}
	if err != nil {
		slog.Warn("command refused", "action", action, "state", c.State(), "error", err)
		return err
	}

	s.stats.Commands++
	s.record(Event{
		ID:          uuid.New(),
		RunID:       s.RunID,
		Tick:        s.lastTick,
		Time:        c.Time(),
		Kind:        action,
		Category:    CategoryOperator,
		Description: desc,
	})
	slog.Info("operator command", "action", action, "state", c.State())
	return nil
}

// Schedule queues commands to run at simulated times. Commands whose time
// has passed run on the next tick.
func (s *Simulation) Schedule(cmds ...Scheduled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = append(s.schedule, cmds...)
	sort.SliceStable(s.schedule, func(i, j int) bool { return s.schedule[i].At < s.schedule[j].At })
}

func (s *Simulation) runSchedule() {
	now := s.comp.Time()
	for len(s.schedule) > 0 && s.schedule[0].At <= now {
		next := s.schedule[0]
		s.schedule = s.schedule[1:]
		if err := s.apply(next.Command); err != nil {
			slog.Warn("scheduled command failed", "at", next.At, "action", next.Command.Action, "error", err)
		}
	}
}

// ── Subscribers ───────────────────────────────────────────────────────

// Subscribe returns a channel receiving every new event. Slow subscribers
// miss events rather than block the simulation.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the subscriber.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulation) publish(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
