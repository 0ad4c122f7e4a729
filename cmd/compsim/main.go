// Command compsim runs a centrifugal compressor against a simulated plant
// and serves its envelope, state and alarms over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/compsim/internal/api"
	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/config"
	"github.com/talgya/compsim/internal/engine"
	"github.com/talgya/compsim/internal/persistence"
	"github.com/talgya/compsim/internal/plant"
)

func main() {
	configPath := flag.String("config", "compsim.ini", "path to the ini configuration")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath); err != nil {
		slog.Error("compsim failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	slog.Info("compsim: centrifugal compressor envelope simulation")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.Info("configuration loaded", "path", configPath, "map", cfg.MapPath, "db", cfg.DBPath)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	hours, err := db.OperatingHours()
	if err != nil {
		return err
	}

	// ── Compressor map ────────────────────────────────────────────────
	m, err := chart.LoadFile(cfg.MapPath)
	if err != nil {
		return err
	}
	speeds := make([]string, 0, len(m.Curves()))
	for _, c := range m.Curves() {
		speeds = append(speeds, fmt.Sprintf("%.0f", c.Speed))
	}
	slog.Info("map loaded",
		"curves", len(speeds),
		"speeds", strings.Join(speeds, ","),
		"head_unit", m.HeadUnit(),
		"surge_line", m.SurgeCurve() != nil && m.SurgeCurve().Active(),
	)

	// ── Plant and compressor ──────────────────────────────────────────
	proc, err := plant.New(cfg.Plant)
	if err != nil {
		return err
	}
	if mw, ok := m.(*chart.MWInterpolated); ok {
		mw.SetFluid(proc.Gas())
		if mw.UseActualMW() {
			slog.Info("molecular-weight blending follows the process gas", "molar_mass_g_mol", proc.Gas().MolarMass()*1000)
		} else {
			slog.Info("molecular-weight blending at a fixed MW", "operating_mw", mw.OperatingMW())
		}
	}

	opts, err := cfg.CompressorOptions()
	if err != nil {
		return err
	}
	comp, err := compressor.New(m, opts...)
	if err != nil {
		return err
	}
	comp.SetOperatingHours(hours)
	if d := comp.Driver(); d != nil {
		slog.Info("driver configured", "type", d.Type, "rated_kw", humanize.Commaf(d.RatedPower), "max_speed", d.MaxSpeed)
	} else {
		slog.Info("no driver configured, fixed ramp rates apply")
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(comp, proc)
	if err := db.StartRun(sim.RunID, filepath.Base(cfg.MapPath), cfg); err != nil {
		return err
	}
	saver := &persistence.Saver{DB: db, Sim: sim}

	eng := engine.NewEngine()
	eng.Dt = cfg.Simulation.Dt
	eng.Interval = cfg.Simulation.Interval
	eng.SetSpeed(cfg.Simulation.Speed)

	saveEvery := max(cfg.Simulation.SaveEvery, 1)
	eng.OnTick = func(tick uint64, dt float64) {
		sim.Tick(tick, dt)
		if tick%saveEvery == 0 {
			if err := saver.Save(); err != nil {
				slog.Error("periodic save failed", "tick", tick, "error", err)
			}
		}
	}
	eng.OnHour = sim.LogHour

	if cfg.Simulation.AutoStart {
		if err := sim.Apply(engine.Command{Action: engine.ActionStart, Speed: cfg.Simulation.TargetSpeed}); err != nil {
			slog.Warn("automatic start refused", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn(config.EnvAdminKey + " not set, operator POST endpoints will be disabled")
	}
	srv := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Port:        cfg.Server.Port,
		AdminKey:    cfg.Server.AdminKey,
		RelayKey:    cfg.Server.RelayKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\ncompsim running: map %s, %d speed lines, %s operating hours on record.\n",
		filepath.Base(cfg.MapPath), len(speeds), humanize.CommafWithDigits(hours, 1))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	runErr := g.Wait()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := saver.Save(); err != nil {
		slog.Error("final save failed", "error", err)
	}
	if err := db.EndRun(sim.RunID); err != nil {
		slog.Error("closing run failed", "error", err)
	}

	st, stats := sim.Status(), sim.Stats()
	fmt.Printf("Simulation stopped at %s in state %s. Energy %s, %d alarms, %d trips.\n",
		engine.FormatSimTime(st.Time), st.State,
		humanize.SIWithDigits(stats.EnergyKWh*1000, 2, "Wh"), stats.Alarms, stats.Trips)

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}
