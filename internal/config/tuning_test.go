package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/courtside-data/rallycut/internal/rally"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfigPartialOverlay(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "start_buffer": 0.5,
  "end_timeout": 2.0,
  "parabola_min_r2": 0.9,
  "max_misses": 30
}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if cfg.StartBuffer == nil || *cfg.StartBuffer != 0.5 {
		t.Errorf("StartBuffer = %v, want 0.5", cfg.StartBuffer)
	}
	if cfg.EndTimeout == nil || *cfg.EndTimeout != 2.0 {
		t.Errorf("EndTimeout = %v, want 2.0", cfg.EndTimeout)
	}
	if cfg.Preroll != nil {
		t.Errorf("Preroll = %v, want nil for omitted field", cfg.Preroll)
	}

	out, err := cfg.Apply(rally.DefaultProcessorConfig())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.StartBuffer != 0.5 || out.EndTimeout != 2.0 || out.MaxMisses != 30 {
		t.Errorf("overlay not applied: %+v", out)
	}
	if out.ParabolaMinR2 != 0.9 {
		t.Errorf("ParabolaMinR2 = %v, want 0.9", out.ParabolaMinR2)
	}
	// Omitted fields keep their defaults.
	def := rally.DefaultProcessorConfig()
	if out.Preroll != def.Preroll || out.AssumedFPS != def.AssumedFPS {
		t.Errorf("defaults disturbed: %+v", out)
	}
}

func TestEmptyOverlayKeepsDefaults(t *testing.T) {
	out, err := EmptyTuningConfig().Apply(rally.DefaultProcessorConfig())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out != rally.DefaultProcessorConfig() {
		t.Errorf("empty overlay changed the config: %+v", out)
	}
}

func TestApplyRejectsInvalidResult(t *testing.T) {
	bad := -1.0
	cfg := &TuningConfig{AssumedFPS: &bad}
	if _, err := cfg.Apply(rally.DefaultProcessorConfig()); err == nil {
		t.Fatal("expected validation error for negative assumed_fps")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", "start_buffer: 0.5")
	_, err := LoadTuningConfig(path)
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Fatalf("err = %v, want extension rejection", err)
	}
}

func TestLoadTuningConfigRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, "tuning.json", "{not json")
	if _, err := LoadTuningConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig("/nonexistent/tuning.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadProcessorConfig(t *testing.T) {
	cfg, err := LoadProcessorConfig("")
	if err != nil {
		t.Fatalf("LoadProcessorConfig(\"\"): %v", err)
	}
	if cfg != rally.DefaultProcessorConfig() {
		t.Errorf("empty path should yield defaults: %+v", cfg)
	}

	path := writeConfig(t, "tuning.json", `{"preroll": 1.5}`)
	cfg, err = LoadProcessorConfig(path)
	if err != nil {
		t.Fatalf("LoadProcessorConfig: %v", err)
	}
	if cfg.Preroll != 1.5 {
		t.Errorf("Preroll = %v, want 1.5", cfg.Preroll)
	}
}
