package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if ok, warnings := cfg.Validate(); !ok {
		t.Fatalf("DefaultConfig() should validate cleanly, got warnings: %v", warnings)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptureWidth != DefaultConfig().CaptureWidth {
		t.Fatalf("expected defaults for a missing config file")
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	ini := `
[logging]
level = debug
stdout = false

[profile]
capture_width = 1280
capture_height = 720
capture_fps = 30
capture_format = yuyv

[state]
preferred_backend = pipewire
mirror_preview = true
selected_encoder_index = 2
`
	if err := os.WriteFile(path, []byte(ini), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", cfg.LogLevel)
	}
	if cfg.LogToStdout {
		t.Error("LogToStdout should be false")
	}
	if cfg.CaptureWidth != 1280 || cfg.CaptureHeight != 720 || cfg.CaptureFPS != 30 {
		t.Errorf("profile section not applied: %+v", cfg)
	}
	if cfg.CaptureFormat != "yuyv" {
		t.Errorf("CaptureFormat = %q, want yuyv", cfg.CaptureFormat)
	}
	if cfg.PreferredBackend != "pipewire" {
		t.Errorf("PreferredBackend = %q, want pipewire", cfg.PreferredBackend)
	}
	if !cfg.MirrorPreview {
		t.Error("MirrorPreview should be true")
	}
	if cfg.SelectedEncoderIndex != 2 {
		t.Errorf("SelectedEncoderIndex = %d, want 2", cfg.SelectedEncoderIndex)
	}
}

func TestLoadIgnoresUnrecognizedCaptureFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	ini := "[profile]\ncapture_format = h264\n"
	if err := os.WriteFile(path, []byte(ini), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CaptureFormat != DefaultConfig().CaptureFormat {
		t.Errorf("unrecognized capture_format should fall back to default, got %q", cfg.CaptureFormat)
	}
}

func TestSaveRoundTripsPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	cfg := DefaultConfig()
	cfg.LastCameraPath = "/dev/video2"
	cfg.PreferredBackend = "libcamera"
	cfg.BitratePreset = "High"
	cfg.CameraFormats = map[string]string{"/dev/video2": "1920x1080@30:NV12"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if got.LastCameraPath != cfg.LastCameraPath {
		t.Errorf("LastCameraPath = %q, want %q", got.LastCameraPath, cfg.LastCameraPath)
	}
	if got.PreferredBackend != cfg.PreferredBackend {
		t.Errorf("PreferredBackend = %q, want %q", got.PreferredBackend, cfg.PreferredBackend)
	}
	if got.BitratePreset != cfg.BitratePreset {
		t.Errorf("BitratePreset = %q, want %q", got.BitratePreset, cfg.BitratePreset)
	}
	if got.CameraFormats["/dev/video2"] != "1920x1080@30:NV12" {
		t.Errorf("CameraFormats not round-tripped: %+v", got.CameraFormats)
	}
}

func TestAsIntClampsToBounds(t *testing.T) {
	if v := asInt("500", 10, intPtr(1), intPtr(100)); v != 100 {
		t.Errorf("asInt clamp high = %d, want 100", v)
	}
	if v := asInt("-5", 10, intPtr(1), intPtr(100)); v != 1 {
		t.Errorf("asInt clamp low = %d, want 1", v)
	}
	if v := asInt("not-a-number", 42, nil, nil); v != 42 {
		t.Errorf("asInt on parse failure = %d, want fallback 42", v)
	}
}

func TestAsBoolRecognizesTruthyAndFalsy(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", "TRUE"} {
		if !asBool(v, false) {
			t.Errorf("asBool(%q) should be true", v)
		}
	}
	for _, v := range []string{"0", "false", "no", "off"} {
		if asBool(v, true) {
			t.Errorf("asBool(%q) should be false", v)
		}
	}
	if !asBool("garbage", true) {
		t.Error("asBool on unrecognized value should return the fallback")
	}
}

func TestValidateFlagsHighBandwidth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CaptureWidth = 3840
	cfg.CaptureHeight = 2160
	cfg.CaptureFPS = 60

	ok, warnings := cfg.Validate()
	if ok {
		t.Fatal("expected Validate to flag excessive bandwidth as not ok")
	}
	if len(warnings) == 0 {
		t.Fatal("expected at least one warning")
	}
}

func TestValidateFlagsMinDynamicFPSAboveCaptureFPS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDynamicFPS = cfg.CaptureFPS + 5

	_, warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if w == "MinDynamicFPS (30) > CaptureFPS (25)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected MinDynamicFPS warning, got %v", warnings)
	}
}
