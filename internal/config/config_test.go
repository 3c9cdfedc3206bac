package config

import (
	"testing"
	"time"
)

func clearGodviewEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"GODVIEW_ENV",
		"GODVIEW_HISTORY_DEPTH",
		"GODVIEW_HEX_RESOLUTION",
		"GODVIEW_VOXEL_HEIGHT_M",
		"GODVIEW_FRESHNESS_WINDOW_NS",
		"GODVIEW_ASSIGNMENT_GATE_CHI2",
		"GODVIEW_MAX_ASSOCIATION_RADIUS_M",
		"GODVIEW_RECONCILIATION_PERIOD_MS",
		"GODVIEW_IDLE_TIMEOUT_MS",
		"GODVIEW_TOMBSTONE_CAPACITY",
		"GODVIEW_PROCESS_NOISE_Q_SCALE",
		"GODVIEW_MEASUREMENT_NOISE_R_DEFAULT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsMatchSpec(t *testing.T) {
	clearGodviewEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HistoryDepth != 20 {
		t.Errorf("HistoryDepth = %d, want 20", cfg.HistoryDepth)
	}
	if cfg.HexResolution != 10 {
		t.Errorf("HexResolution = %d, want 10", cfg.HexResolution)
	}
	if cfg.VoxelHeightM != 2.0 {
		t.Errorf("VoxelHeightM = %v, want 2.0", cfg.VoxelHeightM)
	}
	if cfg.FreshnessWindow != 5*time.Second {
		t.Errorf("FreshnessWindow = %v, want 5s", cfg.FreshnessWindow)
	}
	if cfg.MaxAssociationRadiusM != 20.0 {
		t.Errorf("MaxAssociationRadiusM = %v, want 20.0", cfg.MaxAssociationRadiusM)
	}
	if cfg.ReconciliationPeriod != 500*time.Millisecond {
		t.Errorf("ReconciliationPeriod = %v, want 500ms", cfg.ReconciliationPeriod)
	}
	if cfg.IdleTimeout != 5*time.Second {
		t.Errorf("IdleTimeout = %v, want 5s", cfg.IdleTimeout)
	}
	if cfg.TombstoneCapacity != 10000 {
		t.Errorf("TombstoneCapacity = %d, want 10000", cfg.TombstoneCapacity)
	}
	if cfg.ProcessNoiseQScale != 0.01 {
		t.Errorf("ProcessNoiseQScale = %v, want 0.01", cfg.ProcessNoiseQScale)
	}
	if cfg.MeasurementNoiseRDefault != 0.1 {
		t.Errorf("MeasurementNoiseRDefault = %v, want 0.1", cfg.MeasurementNoiseRDefault)
	}
	if cfg.AssignmentGateChi2 <= 0 {
		t.Errorf("AssignmentGateChi2 = %v, want a positive computed default", cfg.AssignmentGateChi2)
	}
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	clearGodviewEnv(t)
	t.Setenv("GODVIEW_HISTORY_DEPTH", "40")
	t.Setenv("GODVIEW_IDLE_TIMEOUT_MS", "9000")
	t.Setenv("GODVIEW_ASSIGNMENT_GATE_CHI2", "7.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HistoryDepth != 40 {
		t.Errorf("HistoryDepth = %d, want 40", cfg.HistoryDepth)
	}
	if cfg.IdleTimeout != 9*time.Second {
		t.Errorf("IdleTimeout = %v, want 9s", cfg.IdleTimeout)
	}
	if cfg.AssignmentGateChi2 != 7.5 {
		t.Errorf("AssignmentGateChi2 = %v, want 7.5", cfg.AssignmentGateChi2)
	}
}

func TestLoadRejectsUnparsableOverride(t *testing.T) {
	clearGodviewEnv(t)
	t.Setenv("GODVIEW_HISTORY_DEPTH", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail on a malformed integer override")
	}
}

func TestDerivedConfigsWireThroughSubsystems(t *testing.T) {
	clearGodviewEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fc := cfg.FilterConfig()
	if fc.HistoryCapacity != cfg.HistoryDepth {
		t.Errorf("FilterConfig.HistoryCapacity = %d, want %d", fc.HistoryCapacity, cfg.HistoryDepth)
	}
	if fc.QScale != cfg.ProcessNoiseQScale {
		t.Errorf("FilterConfig.QScale = %v, want %v", fc.QScale, cfg.ProcessNoiseQScale)
	}

	sc := cfg.SpatialConfig()
	if sc.VoxelHeight != cfg.VoxelHeightM {
		t.Errorf("SpatialConfig.VoxelHeight = %v, want %v", sc.VoxelHeight, cfg.VoxelHeightM)
	}
	if sc.HexEdgeM <= 0 {
		t.Errorf("SpatialConfig.HexEdgeM = %v, want positive", sc.HexEdgeM)
	}

	tc := cfg.TrackManagerConfig()
	if tc.MaxAssociationRadiusM != cfg.MaxAssociationRadiusM {
		t.Errorf("TrackManagerConfig.MaxAssociationRadiusM = %v, want %v", tc.MaxAssociationRadiusM, cfg.MaxAssociationRadiusM)
	}
	if tc.TombstoneCapacity != cfg.TombstoneCapacity {
		t.Errorf("TrackManagerConfig.TombstoneCapacity = %d, want %d", tc.TombstoneCapacity, cfg.TombstoneCapacity)
	}
}

func TestIsDevelopmentMode(t *testing.T) {
	clearGodviewEnv(t)
	if isDevelopmentMode() {
		t.Fatal("expected development mode to be off by default")
	}
	t.Setenv("GODVIEW_ENV", "development")
	if !isDevelopmentMode() {
		t.Fatal("expected GODVIEW_ENV=development to enable development mode")
	}
}
