package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/serialmux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyHelmConfigDefaults(t *testing.T) {
	cfg := EmptyHelmConfig()

	if got := cfg.GetHitPolicy(); got != dial.HitApproximate {
		t.Errorf("GetHitPolicy() = %q, want %q", got, dial.HitApproximate)
	}
	if got := cfg.GetHitFraction(); got != 0.8 {
		t.Errorf("GetHitFraction() = %v, want 0.8", got)
	}
	if got := cfg.GetHandleRadius(); got != 30 {
		t.Errorf("GetHandleRadius() = %v, want 30", got)
	}
	if got := cfg.GetButtonStep(); got != 1 {
		t.Errorf("GetButtonStep() = %v, want 1", got)
	}
	if cfg.GetStaleGuard() {
		t.Error("GetStaleGuard() = true, want false")
	}
	if got := cfg.GetFlushPeriod(); got != 910*time.Millisecond {
		t.Errorf("GetFlushPeriod() = %v, want 910ms", got)
	}
	if got := cfg.GetSamplePeriod(); got != time.Second {
		t.Errorf("GetSamplePeriod() = %v, want 1s", got)
	}
	if got := cfg.GetHistoryRetention(); got != 168*time.Hour {
		t.Errorf("GetHistoryRetention() = %v, want 168h", got)
	}
	if got := cfg.GetCANInterface(); got != "can0" {
		t.Errorf("GetCANInterface() = %q, want can0", got)
	}
	if got := cfg.GetCANSource(); got != SourceSocketCAN {
		t.Errorf("GetCANSource() = %q, want %q", got, SourceSocketCAN)
	}
	if got := cfg.GetCANBitrate(); got != 250000 {
		t.Errorf("GetCANBitrate() = %d, want 250000", got)
	}
	if cfg.GetFeedPort().Enabled() {
		t.Error("feed port should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should be valid: %v", err)
	}
}

func TestLoadHelmConfig(t *testing.T) {
	path := writeConfig(t, "helm.json", `{
  "hit_policy": "exact",
  "hit_fraction": 0.7,
  "handle_radius": 24,
  "button_step": 5,
  "stale_guard": true,
  "flush_period": "2s",
  "feed_port": {"path": "/dev/ttyUSB0", "baud_rate": 57600},
  "can_source": "slcan",
  "can_interface": "slcan0"
}`)

	cfg, err := LoadHelmConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetHitPolicy(); got != dial.HitExact {
		t.Errorf("GetHitPolicy() = %q, want exact", got)
	}
	if got := cfg.GetHitFraction(); got != 0.7 {
		t.Errorf("GetHitFraction() = %v, want 0.7", got)
	}
	if got := cfg.GetFlushPeriod(); got != 2*time.Second {
		t.Errorf("GetFlushPeriod() = %v, want 2s", got)
	}
	if got := cfg.GetFeedPort(); got.Path != "/dev/ttyUSB0" || got.BaudRate != 57600 {
		t.Errorf("GetFeedPort() = %+v", got)
	}
	if got := cfg.GetCANSource(); got != SourceSLCAN {
		t.Errorf("GetCANSource() = %q, want slcan", got)
	}

	// omitted fields keep defaults
	if got := cfg.GetSamplePeriod(); got != time.Second {
		t.Errorf("GetSamplePeriod() = %v, want 1s", got)
	}

	opts := cfg.DialOptions()
	if opts.HitTest.Policy != dial.HitExact || opts.HitTest.Fraction != 0.7 || opts.HitTest.HandleRadius != 24 {
		t.Errorf("DialOptions().HitTest = %+v", opts.HitTest)
	}
	if opts.Step != 5 || !opts.DiscardStale {
		t.Errorf("DialOptions() step=%v discardStale=%v", opts.Step, opts.DiscardStale)
	}
	if _, err := dial.New(opts); err != nil {
		t.Errorf("dial.New rejected mapped options: %v", err)
	}
}

func TestLoadHelmConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "helm.yaml", `{}`, ".json extension"},
		{"bad json", "helm.json", `{"hit_policy":`, "failed to parse"},
		{"bad policy", "helm.json", `{"hit_policy":"loose"}`, "hit_policy"},
		{"fraction too big", "helm.json", `{"hit_fraction":1.5}`, "hit_fraction"},
		{"zero radius", "helm.json", `{"handle_radius":0}`, "handle_radius"},
		{"negative step", "helm.json", `{"button_step":-1}`, "button_step"},
		{"bad duration", "helm.json", `{"flush_period":"soon"}`, "flush_period"},
		{"negative duration", "helm.json", `{"sample_period":"-1s"}`, "sample_period"},
		{"bad source", "helm.json", `{"can_source":"usb"}`, "can_source"},
		{"bad parity", "helm.json", `{"feed_port":{"path":"/dev/ttyS0","parity":"X"}}`, "feed_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadHelmConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadHelmConfigMissingFile(t *testing.T) {
	_, err := LoadHelmConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to stat") {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestLoadHelmConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadHelmConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.HitPolicy == nil || *cfg.HitPolicy != "approximate" {
		t.Errorf("defaults file hit_policy = %v", cfg.HitPolicy)
	}
	if got := cfg.GetFlushPeriod(); got != 910*time.Millisecond {
		t.Errorf("defaults file flush_period = %v", got)
	}
	// the defaults file and the accessors must agree
	empty := EmptyHelmConfig()
	if cfg.GetHitFraction() != empty.GetHitFraction() {
		t.Errorf("hit_fraction mismatch: file %v, accessor %v", cfg.GetHitFraction(), empty.GetHitFraction())
	}
	if cfg.GetHistoryRetention() != empty.GetHistoryRetention() {
		t.Errorf("history_retention mismatch: file %v, accessor %v", cfg.GetHistoryRetention(), empty.GetHistoryRetention())
	}
	if cfg.GetCANBitrate() != empty.GetCANBitrate() {
		t.Errorf("can_bitrate mismatch: file %v, accessor %v", cfg.GetCANBitrate(), empty.GetCANBitrate())
	}
}

func TestWithCAN(t *testing.T) {
	base := &HelmConfig{
		CANSource:    ptrString(SourceSocketCAN),
		CANInterface: ptrString("can0"),
		CANBitrate:   ptrInt(500000),
		StaleGuard:   ptrBool(true),
		HitFraction:  ptrFloat64(0.75),
	}

	got := base.WithCAN(SourcePcap, "")
	if got.GetCANSource() != SourcePcap {
		t.Errorf("source = %q, want pcap", got.GetCANSource())
	}
	if got.GetCANInterface() != "can0" {
		t.Errorf("interface = %q, want can0", got.GetCANInterface())
	}
	if got.GetCANBitrate() != 500000 || !got.GetStaleGuard() || got.GetHitFraction() != 0.75 {
		t.Error("WithCAN dropped unrelated fields")
	}
	if base.GetCANSource() != SourceSocketCAN {
		t.Error("WithCAN mutated the receiver")
	}
}

func TestDurationOrFallsBack(t *testing.T) {
	bad := "nonsense"
	if got := durationOr(&bad, time.Minute); got != time.Minute {
		t.Errorf("durationOr(bad) = %v, want 1m", got)
	}
	empty := ""
	if got := durationOr(&empty, time.Minute); got != time.Minute {
		t.Errorf("durationOr(empty) = %v, want 1m", got)
	}
}

func TestGetSLCANPort(t *testing.T) {
	cfg := &HelmConfig{SLCANPort: &serialmux.PortOptions{Path: "/dev/ttyACM0"}}
	if got := cfg.GetSLCANPort(); got.Path != "/dev/ttyACM0" {
		t.Errorf("GetSLCANPort() = %+v", got)
	}
}
