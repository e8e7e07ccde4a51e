package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchross/intercept/internal/btlocate"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults", func(t *testing.T) {
		path := writeConfig(t, "tuning.json", `{"reference_rssi": -55, "max_trail_points": 500}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)

		params := cfg.Apply(btlocate.DefaultParams())
		assert.Equal(t, -55.0, params.ReferenceRSSI)
		assert.Equal(t, 500, params.MaxTrailPoints)
		assert.Equal(t, btlocate.DefaultHardJumpMeters, params.HardJumpMeters)
	})

	t.Run("empty config is a no-op", func(t *testing.T) {
		path := writeConfig(t, "tuning.json", `{}`)
		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, btlocate.DefaultParams(), cfg.Apply(btlocate.DefaultParams()))
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		path := writeConfig(t, "tuning.yaml", `{}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		path := writeConfig(t, "tuning.json", `{"reference_rssi": `)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "parse")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr string
	}{
		{"negative jump ceiling", TuningConfig{HardJumpMeters: f(-1)}, "hard_jump_meters"},
		{"zero trail cap", TuningConfig{MaxTrailPoints: n(0)}, "max_trail_points"},
		{"alpha above one", TuningConfig{RSSISmoothingAlpha: f(1.5)}, "rssi_smoothing_alpha"},
		{"inverted distance clamp", TuningConfig{MinDistanceM: f(10), MaxDistanceM: f(5)}, "min_distance_m"},
		{"soft above hard", TuningConfig{SoftJumpMeters: f(3000), HardJumpMeters: f(2000)}, "soft_jump_meters"},
		{"inverted confidence clamp", TuningConfig{ConfidenceMinM: f(200), ConfidenceMaxM: f(150)}, "confidence_min_m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	t.Run("valid overrides", func(t *testing.T) {
		cfg := TuningConfig{
			SoftJumpMeters:     f(300),
			HardJumpMeters:     f(1500),
			RSSISmoothingAlpha: f(0.5),
		}
		assert.NoError(t, cfg.Validate())
	})
}
