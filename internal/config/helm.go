package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/helm.defaults.json"

// CAN frame sources selectable with can_source.
const (
	SourceSocketCAN = "socketcan"
	SourceSLCAN     = "slcan"
	SourceCandump   = "candump"
	SourcePcap      = "pcap"
	SourceNone      = "none"
)

// HelmConfig is the root of the JSON configuration file. Every field is
// optional; the Get* accessors supply defaults for anything left out.
type HelmConfig struct {
	// Dial interaction
	HitPolicy     *string  `json:"hit_policy,omitempty"` // "approximate" or "exact"
	HitFraction   *float64 `json:"hit_fraction,omitempty"`
	HandleRadius  *float64 `json:"handle_radius,omitempty"`
	ButtonStep    *float64 `json:"button_step,omitempty"`
	StaleGuard    *bool    `json:"stale_guard,omitempty"`
	RefreshPeriod *string  `json:"refresh_period,omitempty"` // duration string like "1s"

	// Autopilot feed
	FeedPort *serialmux.PortOptions `json:"feed_port,omitempty"`

	// CAN bus
	CANInterface  *string                `json:"can_interface,omitempty"`
	CANSource     *string                `json:"can_source,omitempty"`
	CANBitrate    *int                   `json:"can_bitrate,omitempty"`
	SLCANPort     *serialmux.PortOptions `json:"slcan_port,omitempty"`
	SummaryPeriod *string                `json:"summary_period,omitempty"`

	// Frame logging
	FlushPeriod *string `json:"flush_period,omitempty"`

	// Nav history
	SamplePeriod     *string `json:"sample_period,omitempty"`
	HistoryRetention *string `json:"history_retention,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyHelmConfig returns a HelmConfig with all fields unset.
func EmptyHelmConfig() *HelmConfig {
	return &HelmConfig{}
}

// LoadHelmConfig loads a HelmConfig from a JSON file. The file must have a
// .json extension and be under 1MB. Omitted fields keep their defaults, so
// partial configs are safe.
func LoadHelmConfig(path string) (*HelmConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyHelmConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *HelmConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadHelmConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *HelmConfig) Validate() error {
	if c.HitPolicy != nil {
		switch dial.HitPolicy(*c.HitPolicy) {
		case dial.HitApproximate, dial.HitExact:
		default:
			return fmt.Errorf("hit_policy must be %q or %q, got %q", dial.HitApproximate, dial.HitExact, *c.HitPolicy)
		}
	}
	if c.HitFraction != nil {
		if *c.HitFraction <= 0 || *c.HitFraction >= 1 {
			return fmt.Errorf("hit_fraction must be between 0 and 1, got %f", *c.HitFraction)
		}
	}
	if c.HandleRadius != nil && *c.HandleRadius <= 0 {
		return fmt.Errorf("handle_radius must be positive, got %f", *c.HandleRadius)
	}
	if c.ButtonStep != nil {
		if *c.ButtonStep <= 0 || *c.ButtonStep > 90 {
			return fmt.Errorf("button_step must be in (0, 90], got %f", *c.ButtonStep)
		}
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"refresh_period", c.RefreshPeriod},
		{"summary_period", c.SummaryPeriod},
		{"flush_period", c.FlushPeriod},
		{"sample_period", c.SamplePeriod},
		{"history_retention", c.HistoryRetention},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.CANSource != nil {
		switch *c.CANSource {
		case SourceSocketCAN, SourceSLCAN, SourceCandump, SourcePcap, SourceNone:
		default:
			return fmt.Errorf("unknown can_source %q", *c.CANSource)
		}
	}
	if c.CANBitrate != nil && *c.CANBitrate <= 0 {
		return fmt.Errorf("can_bitrate must be positive, got %d", *c.CANBitrate)
	}

	if c.FeedPort != nil && c.FeedPort.Enabled() {
		if _, err := c.FeedPort.Normalize(); err != nil {
			return fmt.Errorf("feed_port: %w", err)
		}
	}
	if c.SLCANPort != nil && c.SLCANPort.Enabled() {
		if _, err := c.SLCANPort.Normalize(); err != nil {
			return fmt.Errorf("slcan_port: %w", err)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetHitPolicy returns the hit_policy value or the default.
func (c *HelmConfig) GetHitPolicy() dial.HitPolicy {
	if c.HitPolicy == nil || *c.HitPolicy == "" {
		return dial.HitApproximate
	}
	return dial.HitPolicy(*c.HitPolicy)
}

// GetHitFraction returns the hit_fraction value or the default.
func (c *HelmConfig) GetHitFraction() float64 {
	if c.HitFraction == nil {
		return dial.DefaultHitFraction
	}
	return *c.HitFraction
}

// GetHandleRadius returns the handle_radius value or the default.
func (c *HelmConfig) GetHandleRadius() float64 {
	if c.HandleRadius == nil {
		return dial.DefaultHandleRadius
	}
	return *c.HandleRadius
}

// GetButtonStep returns the button_step value or the default.
func (c *HelmConfig) GetButtonStep() float64 {
	if c.ButtonStep == nil {
		return 1
	}
	return *c.ButtonStep
}

// GetStaleGuard returns the stale_guard value or the default.
func (c *HelmConfig) GetStaleGuard() bool {
	if c.StaleGuard == nil {
		return false
	}
	return *c.StaleGuard
}

// GetRefreshPeriod returns the view republish period.
func (c *HelmConfig) GetRefreshPeriod() time.Duration {
	return durationOr(c.RefreshPeriod, time.Second)
}

// GetSummaryPeriod returns how often the J1939 summary is republished.
func (c *HelmConfig) GetSummaryPeriod() time.Duration {
	return durationOr(c.SummaryPeriod, time.Second)
}

// GetFlushPeriod returns the frame logger flush period.
func (c *HelmConfig) GetFlushPeriod() time.Duration {
	return durationOr(c.FlushPeriod, 910*time.Millisecond)
}

// GetSamplePeriod returns the nav history sample period.
func (c *HelmConfig) GetSamplePeriod() time.Duration {
	return durationOr(c.SamplePeriod, time.Second)
}

// GetHistoryRetention returns how long nav history is kept.
func (c *HelmConfig) GetHistoryRetention() time.Duration {
	return durationOr(c.HistoryRetention, 7*24*time.Hour)
}

// GetFeedPort returns the autopilot serial port options. A zero Path means
// the port is disabled.
func (c *HelmConfig) GetFeedPort() serialmux.PortOptions {
	if c.FeedPort == nil {
		return serialmux.PortOptions{}
	}
	return *c.FeedPort
}

// GetSLCANPort returns the SLCAN adapter serial port options.
func (c *HelmConfig) GetSLCANPort() serialmux.PortOptions {
	if c.SLCANPort == nil {
		return serialmux.PortOptions{}
	}
	return *c.SLCANPort
}

// GetCANInterface returns the can_interface value or the default.
func (c *HelmConfig) GetCANInterface() string {
	if c.CANInterface == nil || *c.CANInterface == "" {
		return "can0"
	}
	return *c.CANInterface
}

// GetCANSource returns the can_source value or the default.
func (c *HelmConfig) GetCANSource() string {
	if c.CANSource == nil || *c.CANSource == "" {
		return SourceSocketCAN
	}
	return *c.CANSource
}

// GetCANBitrate returns the can_bitrate value or the default.
func (c *HelmConfig) GetCANBitrate() int {
	if c.CANBitrate == nil {
		return 250000
	}
	return *c.CANBitrate
}

// DialOptions maps the dial section onto dial.Options.
func (c *HelmConfig) DialOptions() dial.Options {
	opts := dial.DefaultOptions()
	opts.HitTest = dial.HitTest{
		Policy:       c.GetHitPolicy(),
		Fraction:     c.GetHitFraction(),
		HandleRadius: c.GetHandleRadius(),
	}
	opts.Step = c.GetButtonStep()
	opts.DiscardStale = c.GetStaleGuard()
	return opts
}

// WithCAN returns a copy of c with the CAN source and interface overridden.
// Empty arguments leave the current values untouched; used for flag
// overrides.
func (c *HelmConfig) WithCAN(source, iface string) *HelmConfig {
	out := *c
	if source != "" {
		out.CANSource = ptrString(source)
	}
	if iface != "" {
		out.CANInterface = ptrString(iface)
	}
	return &out
}
