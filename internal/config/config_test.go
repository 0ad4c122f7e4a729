package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/driver"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/compsim.db", cfg.DBPath)
	assert.Equal(t, "maps/sample.json", cfg.MapPath)
	assert.Equal(t, time.Second, cfg.Simulation.Interval)
	assert.True(t, cfg.Simulation.AutoStart)
	assert.Equal(t, 0.15, cfg.Compressor.SurgeWarning)
	assert.Equal(t, 3600, cfg.Compressor.History)
	assert.InDelta(t, 0.0192, cfg.Plant.Gas.MolarMassKg, 1e-12)
	assert.Equal(t, "vfd_motor", cfg.Driver.Type)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
[server]
port = 9000
cors_origins = https://a.example, https://b.example

[simulation]
interval_ms = 250
dt = 0.5
auto_start = false

[compressor]
surge_warning = 0.2
surge_critical = 0.08
auto_speed = true

[driver]
type = gas_turbine
rated_power = 12000

[gas]
molar_mass = 28.0

[plant]
disturbance = 0
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.Interval)
	assert.Equal(t, 0.5, cfg.Simulation.Dt)
	assert.False(t, cfg.Simulation.AutoStart)
	assert.Equal(t, 0.2, cfg.Compressor.SurgeWarning)
	assert.True(t, cfg.Compressor.AutoSpeed)
	assert.InDelta(t, 0.028, cfg.Plant.Gas.MolarMassKg, 1e-12)
	assert.Zero(t, cfg.Plant.Disturbance)

	d, err := cfg.NewDriver()
	require.NoError(t, err)
	assert.Equal(t, driver.GasTurbine, d.Type)
	assert.Equal(t, 12000.0, d.RatedPower)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAdminKey, "secret")
	t.Setenv(EnvRelayKey, "relay")
	t.Setenv(EnvDB, "/tmp/x.db")
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvCORSOrigins, "https://ui.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, "relay", cfg.Server.RelayKey)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Contains(t, cfg.Server.CORSOrigins, "https://ui.example")
}

func TestInvalidConfig(t *testing.T) {
	for name, text := range map[string]string{
		"driver type":  "[driver]\ntype = windmill\n",
		"driver power": "[driver]\nrated_power = -5\n",
		"dt":           "[simulation]\ndt = 0\n",
		"port":         "[server]\nport = 70000\n",
		"gas":          "[gas]\npressure = 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(text))
			assert.Error(t, err)
		})
	}
}

func TestNoDriver(t *testing.T) {
	cfg, err := Parse([]byte("[driver]\ntype = none\n"))
	require.NoError(t, err)
	d, err := cfg.NewDriver()
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestCompressorOptions(t *testing.T) {
	cfg, err := Parse([]byte("[compressor]\nsurge_warning = 0.25\nsurge_critical = 0.1\nhistory = 10\n"))
	require.NoError(t, err)
	opts, err := cfg.CompressorOptions()
	require.NoError(t, err)

	c, err := compressor.New(chart.NewFanLaw(), opts...)
	require.NoError(t, err)
	got := c.Config()
	assert.Equal(t, 0.25, got.SurgeWarning)
	assert.Equal(t, 0.1, got.SurgeCritical)
	assert.Equal(t, 10, got.HistoryCapacity)
	assert.True(t, got.LimitSpeed)
	require.NotNil(t, c.Driver())
	assert.Equal(t, driver.VFDMotor, c.Driver().Type)
}
