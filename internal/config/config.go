// Package config loads the fusion core's tunables from the environment,
// the way the teacher's platform/db package loads datastore settings.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/asgard/godview/internal/filter"
	"github.com/asgard/godview/internal/spatial"
	"github.com/asgard/godview/internal/trackmgr"
)

// Config is the structured record of every recognized option (§6).
type Config struct {
	HistoryDepth             int
	HexResolution            int
	VoxelHeightM             float64
	FreshnessWindow          time.Duration
	AssignmentGateChi2       float64
	MaxAssociationRadiusM    float64
	ReconciliationPeriod     time.Duration
	IdleTimeout              time.Duration
	TombstoneCapacity        int
	ProcessNoiseQScale       float64
	MeasurementNoiseRDefault float64
}

// isDevelopmentMode reports whether GODVIEW_ENV=development. Its only effect
// is that Load prints a warning when the chi-square gate is left unset.
func isDevelopmentMode() bool {
	return os.Getenv("GODVIEW_ENV") == "development"
}

// Load reads configuration from the environment, falling back to the spec
// defaults (§6) for anything unset.
func Load() (*Config, error) {
	gate, err := getEnvFloat("GODVIEW_ASSIGNMENT_GATE_CHI2", 0)
	if err != nil {
		return nil, err
	}
	if gate == 0 {
		gate = trackmgr.DefaultChiSquareGate()
	}

	historyDepth, err := getEnvInt("GODVIEW_HISTORY_DEPTH", 20)
	if err != nil {
		return nil, err
	}
	hexResolution, err := getEnvInt("GODVIEW_HEX_RESOLUTION", 10)
	if err != nil {
		return nil, err
	}
	voxelHeight, err := getEnvFloat("GODVIEW_VOXEL_HEIGHT_M", 2.0)
	if err != nil {
		return nil, err
	}
	freshnessNS, err := getEnvInt("GODVIEW_FRESHNESS_WINDOW_NS", 5_000_000_000)
	if err != nil {
		return nil, err
	}
	maxRadius, err := getEnvFloat("GODVIEW_MAX_ASSOCIATION_RADIUS_M", 20.0)
	if err != nil {
		return nil, err
	}
	reconciliationMS, err := getEnvInt("GODVIEW_RECONCILIATION_PERIOD_MS", 500)
	if err != nil {
		return nil, err
	}
	idleTimeoutMS, err := getEnvInt("GODVIEW_IDLE_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	tombstoneCapacity, err := getEnvInt("GODVIEW_TOMBSTONE_CAPACITY", 10000)
	if err != nil {
		return nil, err
	}
	qScale, err := getEnvFloat("GODVIEW_PROCESS_NOISE_Q_SCALE", 0.01)
	if err != nil {
		return nil, err
	}
	rDefault, err := getEnvFloat("GODVIEW_MEASUREMENT_NOISE_R_DEFAULT", 0.1)
	if err != nil {
		return nil, err
	}

	if isDevelopmentMode() && os.Getenv("GODVIEW_ASSIGNMENT_GATE_CHI2") == "" {
		fmt.Println("[CONFIG] WARNING: GODVIEW_ASSIGNMENT_GATE_CHI2 unset, using computed chi-square default in development mode")
	}

	return &Config{
		HistoryDepth:             historyDepth,
		HexResolution:            hexResolution,
		VoxelHeightM:             voxelHeight,
		FreshnessWindow:          time.Duration(freshnessNS),
		AssignmentGateChi2:       gate,
		MaxAssociationRadiusM:    maxRadius,
		ReconciliationPeriod:     time.Duration(reconciliationMS) * time.Millisecond,
		IdleTimeout:              time.Duration(idleTimeoutMS) * time.Millisecond,
		TombstoneCapacity:        tombstoneCapacity,
		ProcessNoiseQScale:       qScale,
		MeasurementNoiseRDefault: rDefault,
	}, nil
}

// FilterConfig derives the temporal filter's configuration slice.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{QScale: c.ProcessNoiseQScale, HistoryCapacity: c.HistoryDepth}
}

// SpatialConfig derives the spatial index's configuration slice.
func (c *Config) SpatialConfig() spatial.Config {
	return spatial.Config{HexEdgeM: hexEdgeForResolution(c.HexResolution), VoxelHeight: c.VoxelHeightM}
}

// TrackManagerConfig derives the track manager's configuration slice.
func (c *Config) TrackManagerConfig() trackmgr.Config {
	return trackmgr.Config{
		FilterConfig:          c.FilterConfig(),
		MaxAssociationRadiusM: c.MaxAssociationRadiusM,
		AssignmentGateChi2:    c.AssignmentGateChi2,
		ReconciliationPeriod:  c.ReconciliationPeriod,
		IdleTimeout:           c.IdleTimeout,
		TombstoneCapacity:     c.TombstoneCapacity,
		PriorCovDiag:          10.0,
	}
}

// TrustFreshnessWindow exposes the freshness window passed to trust.Verifier.Verify.
func (c *Config) TrustFreshnessWindow() time.Duration { return c.FreshnessWindow }

// hexEdgeForResolution maps a coarse H3-style level knob to a hex edge
// length in meters; each level halves the cell size, with level 10 fixed
// at spatial.DefaultConfig's edge (cells ~65m corner-to-corner).
func hexEdgeForResolution(level int) float64 {
	const referenceLevel = 10
	referenceEdgeM := spatial.DefaultConfig().HexEdgeM
	return referenceEdgeM * math.Pow(2, float64(referenceLevel-level))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int64) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return int(defaultValue), nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(raw, 64)
}
