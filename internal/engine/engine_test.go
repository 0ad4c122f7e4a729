package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compsim/internal/alarm"
	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/plant"
)

func TestEngineStepCallbacks(t *testing.T) {
	e := NewEngine()
	e.Dt = 30
	var ticks, minutes, hours int
	e.OnTick = func(uint64, float64) { ticks++ }
	e.OnMinute = func(uint64) { minutes++ }
	e.OnHour = func(uint64) { hours++ }

	e.Step(240)
	assert.Equal(t, 240, ticks)
	assert.Equal(t, 120, minutes)
	assert.Equal(t, 2, hours)
	assert.Equal(t, uint64(240), e.Tick)
	assert.Equal(t, 7200.0, e.SimTime())
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.OnTick = func(tick uint64, _ float64) {
		if tick == 5 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.GreaterOrEqual(t, e.Tick, uint64(5))
	assert.False(t, e.Running())
}

func TestEngineSpeed(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, 1.0, e.Speed())
	e.SetSpeed(-3)
	assert.Zero(t, e.Speed())
	e.SetSpeed(50)
	assert.Equal(t, 50.0, e.Speed())
}

func TestFormatSimTime(t *testing.T) {
	assert.Equal(t, "day 1 00:00:00", FormatSimTime(0))
	assert.Equal(t, "day 2 01:01:01", FormatSimTime(90061))
}

func newSim(t *testing.T, opts ...compressor.Option) (*Simulation, *Engine) {
	t.Helper()
	m, err := chart.LoadFile("../../maps/sample.json")
	require.NoError(t, err)
	c, err := compressor.New(m, opts...)
	require.NoError(t, err)
	cfg := plant.DefaultConfig()
	cfg.Disturbance = 0
	p, err := plant.New(cfg)
	require.NoError(t, err)

	sim := NewSimulation(c, p)
	eng := NewEngine()
	eng.OnTick = sim.Tick
	return sim, eng
}

func TestSimulationStartToRunning(t *testing.T) {
	sim, eng := newSim(t)
	require.NoError(t, sim.Apply(Command{Action: ActionStart, Speed: 10453}))
	eng.Step(300)

	st := sim.Status()
	assert.Equal(t, compressor.Running, st.State)
	assert.InDelta(t, 10453, st.Speed, 10)
	assert.Greater(t, st.Flow, 0.0)
	assert.Greater(t, st.Power, 0.0)
	assert.Greater(t, st.SurgeMargin, 0.15)
	assert.False(t, st.AntisurgeOpen)
	assert.Equal(t, uint64(300), st.Tick)
	assert.Equal(t, sim.RunID, st.RunID)

	events := sim.RecentEvents(100)
	var kinds []string
	seen := map[uuid.UUID]bool{}
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, sim.RunID, e.RunID)
		assert.False(t, seen[e.ID], "duplicate event id")
		seen[e.ID] = true
	}
	assert.Equal(t, []string{
		alarm.StateChange.String(),
		ActionStart,
		alarm.StateChange.String(),
		alarm.StartupComplete.String(),
	}, kinds)
	assert.Equal(t, "STOPPED -> STARTING", events[0].Description)
	assert.Equal(t, CategoryOperator, events[1].Category)

	stats := sim.Stats()
	assert.Greater(t, stats.EnergyKWh, 0.0)
	assert.Greater(t, stats.PeakPowerKW, 0.0)
	assert.Equal(t, 1, stats.Commands)
	assert.Zero(t, stats.Alarms)
}

func TestSimulationTripAndAcknowledge(t *testing.T) {
	sim, eng := newSim(t)
	require.NoError(t, sim.Apply(Command{Action: ActionStart, Speed: 10453}))
	eng.Step(300)

	require.NoError(t, sim.Apply(Command{Action: ActionESD}))
	assert.True(t, sim.Status().Tripped)
	eng.Step(200)
	assert.Equal(t, compressor.Tripped, sim.Status().State)

	err := sim.Apply(Command{Action: ActionStart, Speed: 10453})
	assert.ErrorIs(t, err, compressor.ErrInvalidTransition)

	require.NoError(t, sim.Apply(Command{Action: ActionAck}))
	assert.Equal(t, compressor.Standby, sim.Status().State)
	assert.Equal(t, 1, sim.Stats().Trips)
}

func TestSimulationBadCommands(t *testing.T) {
	sim, _ := newSim(t)
	assert.ErrorIs(t, sim.Apply(Command{Action: "launch"}), ErrUnknownAction)

	require.NoError(t, sim.Apply(Command{Action: ActionStart, Speed: 9000}))
	assert.ErrorIs(t, sim.Apply(Command{Action: ActionStop, Type: "gentle"}), curve.ErrConfig)
	assert.Equal(t, compressor.Starting, sim.Status().State)
	assert.Equal(t, 1, sim.Stats().Commands)
}

func TestSimulationTargetIsClampedWithSpeedLimit(t *testing.T) {
	sim, _ := newSim(t, compressor.WithSpeedLimit(true))
	require.NoError(t, sim.Apply(Command{Action: ActionTarget, Speed: 20000}))
	assert.Equal(t, sim.Map().MaxSpeed(), sim.Status().TargetSpeed)
}

func TestScheduledCommands(t *testing.T) {
	sim, eng := newSim(t)
	sim.Schedule(
		Scheduled{At: 200, Command: Command{Action: ActionStop, Type: "rapid"}},
		Scheduled{At: 0, Command: Command{Action: ActionStart, Speed: 10453}},
	)
	eng.Step(150)
	assert.Equal(t, compressor.Running, sim.Status().State)
	eng.Step(250)
	assert.Equal(t, compressor.Stopped, sim.Status().State)
	assert.Equal(t, 2, sim.Stats().Commands)
}

func TestSubscribeAndDrain(t *testing.T) {
	sim, _ := newSim(t)
	id, ch := sim.Subscribe()

	require.NoError(t, sim.Apply(Command{Action: ActionStart, Speed: 10453}))
	first := <-ch
	assert.Equal(t, alarm.StateChange.String(), first.Kind)
	second := <-ch
	assert.Equal(t, ActionStart, second.Kind)

	sim.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	sim.Unsubscribe(id)

	drained := sim.DrainEvents()
	assert.Len(t, drained, 2)
	assert.Empty(t, sim.DrainEvents())
	assert.Len(t, sim.RecentEvents(10), 2)
	assert.Len(t, sim.RecentEvents(1), 1)
}

func TestRequeueEventsKeepsOrder(t *testing.T) {
	sim, _ := newSim(t)
	require.NoError(t, sim.Apply(Command{Action: ActionStart, Speed: 10453}))
	drained := sim.DrainEvents()
	require.Len(t, drained, 2)

	require.NoError(t, sim.Apply(Command{Action: ActionTarget, Speed: 10000}))
	sim.RequeueEvents(drained)
	sim.RequeueEvents(nil)

	all := sim.DrainEvents()
	require.Len(t, all, 3)
	assert.Equal(t, drained[0].ID, all[0].ID)
	assert.Equal(t, drained[1].ID, all[1].ID)
	assert.Equal(t, ActionTarget, all[2].Kind)
}

func TestHistoryAfter(t *testing.T) {
	sim, eng := newSim(t)
	eng.Step(10)
	pts := sim.History(5)
	require.Len(t, pts, 5)
	assert.Equal(t, 6.0, pts[0].Time)
	assert.Empty(t, sim.History(10))
}

func TestTripStarted(t *testing.T) {
	ev := func(from, to compressor.State) alarm.Event {
		return alarm.Event{Kind: alarm.StateChange, From: from.String(), To: to.String()}
	}
	assert.True(t, tripStarted(ev(compressor.Running, compressor.Shutdown), true))
	assert.False(t, tripStarted(ev(compressor.Running, compressor.Shutdown), false))
	assert.False(t, tripStarted(ev(compressor.Shutdown, compressor.Tripped), false))
	assert.True(t, tripStarted(ev(compressor.Stopped, compressor.Tripped), false))
	assert.False(t, tripStarted(ev(compressor.Tripped, compressor.Standby), false))
}
