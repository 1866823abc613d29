package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/vehicle"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "compliance.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, 20, cfg.Sweep.History)

	th, err := cfg.ThresholdTable()
	require.NoError(t, err)
	assert.Equal(t, vehicle.TaxExpiryThreshold, th.For(vehicle.Tax))
	assert.Equal(t, 30, th.For(vehicle.Insurance))
}

func TestLoad_EnvOverridesThresholdAndSweep(t *testing.T) {
	// GIVEN: The tax threshold and sweep interval set via environment
	// WHEN: Loading without a file
	// THEN: Only tax changes; other types keep 30 days

	t.Setenv("COMPLIANCE_THRESHOLDS_TYPES_TAX", "15")
	t.Setenv("COMPLIANCE_THRESHOLDS_TYPES_NATIONAL_PERMIT_PART_A", "45")
	t.Setenv("COMPLIANCE_SWEEP_INTERVAL", "6h")
	t.Setenv("COMPLIANCE_DATABASE_PATH", ":memory:")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, ":memory:", cfg.Database.Path)

	th, err := cfg.ThresholdTable()
	require.NoError(t, err)
	assert.Equal(t, 15, th.For(vehicle.Tax))
	assert.Equal(t, 45, th.For(vehicle.NationalPermitPartA))
	assert.Equal(t, 30, th.For(vehicle.GPS))
}

func TestLoad_FileDefaultAndPerTypeOverride(t *testing.T) {
	path := writeConfig(t, "compliance.toml", `
[server]
port = "9090"

[sweep]
run_on_start = false

[thresholds]
default = 20

[thresholds.types]
insurance = 45
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Sweep.RunOnStart)

	th, err := cfg.ThresholdTable()
	require.NoError(t, err)
	assert.Equal(t, 20, th.For(vehicle.Tax), "explicit default replaces registered defaults")
	assert.Equal(t, 45, th.For(vehicle.Insurance))
	assert.Equal(t, 20, th.Default())
}

func TestLoad_UnknownThresholdTypeRejected(t *testing.T) {
	path := writeConfig(t, "compliance.yaml", `
thresholds:
  types:
    pollution: 10
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrUnknownRecordType)
}

func TestLoad_LegacyThresholdTypeNames(t *testing.T) {
	// GIVEN: A threshold table keyed by camelCase type names
	// WHEN: Loading it
	// THEN: The names resolve to the registered types; env still wins

	path := writeConfig(t, "compliance.yaml", `
thresholds:
  types:
    tax: 15
    cgPermit: 20
    nationalPermitPartA: 25
`)
	t.Setenv("COMPLIANCE_THRESHOLDS_TYPES_NATIONAL_PERMIT_PART_A", "40")

	cfg, err := Load(path)
	require.NoError(t, err)

	th, err := cfg.ThresholdTable()
	require.NoError(t, err)
	assert.Equal(t, 15, th.For(vehicle.Tax))
	assert.Equal(t, 20, th.For(vehicle.CGPermit))
	assert.Equal(t, 40, th.For(vehicle.NationalPermitPartA))
	assert.Equal(t, 30, th.For(vehicle.GPS))
}

func TestLoad_NegativeThresholdRejected(t *testing.T) {
	t.Setenv("COMPLIANCE_THRESHOLDS_TYPES_GPS", "-1")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_InvalidSweepInterval(t *testing.T) {
	t.Setenv("COMPLIANCE_SWEEP_INTERVAL", "0s")
	_, err := Load("")
	assert.Error(t, err)
}
