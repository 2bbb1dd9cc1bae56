// Package config loads the radarctl configuration and encodes the blob that
// carries a mode change across cores.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sarchlab/radarctl/stage"
)

// StageConfig describes one stage of a mode.
type StageConfig struct {
	Name         string        `mapstructure:"name"`
	Kind         string        `mapstructure:"kind"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

// ModeConfig is a named list of stages.
type ModeConfig struct {
	Name   string        `mapstructure:"name"`
	Stages []StageConfig `mapstructure:"stages"`
}

// PoolConfig sizes the resource pools.
type PoolConfig struct {
	FastBase       uint64 `mapstructure:"fast_base"`
	FastSize       uint64 `mapstructure:"fast_size"`
	LargeBase      uint64 `mapstructure:"large_base"`
	LargeSize      uint64 `mapstructure:"large_size"`
	DMAChannels    int    `mapstructure:"dma_channels"`
	ParamSets      int    `mapstructure:"param_sets"`
	TriggerSources int    `mapstructure:"trigger_sources"`
	WindowElements uint32 `mapstructure:"window_elements"`
	PingPong       bool   `mapstructure:"ping_pong"`
}

// StateConfig is one low-power state of the platform.
type StateConfig struct {
	Name        string        `mapstructure:"name"`
	Depth       int           `mapstructure:"depth"`
	WakeLatency time.Duration `mapstructure:"wake_latency"`
}

// PeripheralConfig is one peripheral the power scheduler may suspend.
type PeripheralConfig struct {
	ID                string `mapstructure:"id"`
	GateClock         bool   `mapstructure:"gate_clock"`
	ActiveDuringSleep bool   `mapstructure:"active_during_sleep"`
}

// PowerConfig configures the power scheduler.
type PowerConfig struct {
	Enabled     bool               `mapstructure:"enabled"`
	States      []StateConfig      `mapstructure:"states"`
	Peripherals []PeripheralConfig `mapstructure:"peripherals"`
}

// Config is the whole configuration of a radarctl process.
type Config struct {
	FramePeriod  time.Duration      `mapstructure:"frame_period"`
	ActiveMode   string             `mapstructure:"active_mode"`
	Params       stage.StaticParams `mapstructure:"params"`
	Modes        []ModeConfig       `mapstructure:"modes"`
	Pools        PoolConfig         `mapstructure:"pools"`
	Power        PowerConfig        `mapstructure:"power"`
	ResultWindow int                `mapstructure:"result_window"`
	LinkDepth    int                `mapstructure:"link_depth"`
	Verbose      bool               `mapstructure:"verbose"`
}

// Default returns a configuration that fits the default pools.
func Default() Config {
	return Config{
		FramePeriod: 100 * time.Millisecond,
		ActiveMode:  "tracking",
		Params: stage.StaticParams{
			NumRangeBins:       256,
			NumDopplerBins:     32,
			NumVirtualAntennas: 8,
			MaxObjects:         64,
		},
		Modes: []ModeConfig{
			{
				Name: "tracking",
				Stages: []StageConfig{
					{Name: "Range", Kind: "range"},
					{Name: "Doppler", Kind: "doppler"},
					{Name: "Detection", Kind: "detection"},
					{Name: "Angle", Kind: "angle"},
					{Name: "Classify", Kind: "classify"},
				},
			},
			{
				Name: "presence",
				Stages: []StageConfig{
					{Name: "Range", Kind: "range"},
					{Name: "Doppler", Kind: "doppler"},
					{Name: "Detection", Kind: "detection"},
				},
			},
		},
		Pools: PoolConfig{
			FastBase:       0x2000_0000,
			FastSize:       32 * 1024,
			LargeBase:      0x5100_0000,
			LargeSize:      256 * 1024,
			DMAChannels:    16,
			ParamSets:      64,
			TriggerSources: 4,
			WindowElements: 1024,
			PingPong:       true,
		},
		Power: PowerConfig{
			Enabled: true,
			States: []StateConfig{
				{Name: "idle", Depth: 1, WakeLatency: time.Millisecond},
				{Name: "sleep", Depth: 2, WakeLatency: 10 * time.Millisecond},
				{Name: "deep-sleep", Depth: 3, WakeLatency: 50 * time.Millisecond},
			},
			Peripherals: []PeripheralConfig{
				{ID: "uart", GateClock: true},
				{ID: "spi", GateClock: true},
				{ID: "gpio", GateClock: true, ActiveDuringSleep: true},
			},
		},
		ResultWindow: 4,
		LinkDepth:    8,
	}
}

// Load reads the configuration. An empty path searches for radarctl.toml,
// radarctl.yaml, or radarctl.json in /etc/radarctl and the working
// directory, and falls back to the defaults when none is found. Environment
// variables prefixed with RADARCTL_ override file values; a .env file in the
// working directory is loaded first.
func Load(path string) (Config, error) {
	err := loadDotEnv(".env")
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("RADARCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("radarctl")
		v.AddConfigPath("/etc/radarctl")
		v.AddConfigPath(".")
	}

	err = v.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(path == "" && errors.As(err, &notFound)) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config

	err = v.Unmarshal(&c)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return c, c.Validate()
}

func loadDotEnv(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return godotenv.Load(path)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("frame_period", d.FramePeriod)
	v.SetDefault("active_mode", d.ActiveMode)
	v.SetDefault("params.num_range_bins", d.Params.NumRangeBins)
	v.SetDefault("params.num_doppler_bins", d.Params.NumDopplerBins)
	v.SetDefault("params.num_virtual_antennas", d.Params.NumVirtualAntennas)
	v.SetDefault("params.max_objects", d.Params.MaxObjects)
	v.SetDefault("modes", d.Modes)
	v.SetDefault("pools.fast_base", d.Pools.FastBase)
	v.SetDefault("pools.fast_size", d.Pools.FastSize)
	v.SetDefault("pools.large_base", d.Pools.LargeBase)
	v.SetDefault("pools.large_size", d.Pools.LargeSize)
	v.SetDefault("pools.dma_channels", d.Pools.DMAChannels)
	v.SetDefault("pools.param_sets", d.Pools.ParamSets)
	v.SetDefault("pools.trigger_sources", d.Pools.TriggerSources)
	v.SetDefault("pools.window_elements", d.Pools.WindowElements)
	v.SetDefault("pools.ping_pong", d.Pools.PingPong)
	v.SetDefault("power.enabled", d.Power.Enabled)
	v.SetDefault("power.states", d.Power.States)
	v.SetDefault("power.peripherals", d.Power.Peripherals)
	v.SetDefault("result_window", d.ResultWindow)
	v.SetDefault("link_depth", d.LinkDepth)
	v.SetDefault("verbose", d.Verbose)
}

// Mode returns the mode with the given name.
func (c Config) Mode(name string) (ModeConfig, bool) {
	for _, m := range c.Modes {
		if m.Name == name {
			return m, true
		}
	}

	return ModeConfig{}, false
}

// Validate checks the configuration before anything is built from it.
func (c Config) Validate() error {
	var errs []error

	if c.FramePeriod <= 0 {
		errs = append(errs, errors.New("frame_period must be positive"))
	}

	if len(c.Modes) == 0 {
		errs = append(errs, errors.New("no mode configured"))
	}

	seen := make(map[string]bool)
	for _, m := range c.Modes {
		errs = append(errs, validateMode(m, seen)...)
	}

	if _, ok := c.Mode(c.ActiveMode); !ok {
		errs = append(errs, fmt.Errorf("active mode %q is not configured",
			c.ActiveMode))
	}

	for _, s := range c.Power.States {
		if s.Name == "" {
			errs = append(errs, errors.New("power state without a name"))
		}

		if s.Depth <= 0 {
			errs = append(errs, fmt.Errorf("power state %q needs depth > 0",
				s.Name))
		}
	}

	if c.ResultWindow <= 0 {
		errs = append(errs, errors.New("result_window must be positive"))
	}

	if c.LinkDepth <= 0 {
		errs = append(errs, errors.New("link_depth must be positive"))
	}

	return errors.Join(errs...)
}

func validateMode(m ModeConfig, seen map[string]bool) []error {
	var errs []error

	if m.Name == "" {
		errs = append(errs, errors.New("mode without a name"))
	}

	if seen[m.Name] {
		errs = append(errs, fmt.Errorf("mode %q is defined twice", m.Name))
	}

	seen[m.Name] = true

	if len(m.Stages) == 0 {
		errs = append(errs, fmt.Errorf("mode %q has no stage", m.Name))
	}

	for _, s := range m.Stages {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mode %q has a stage without a name",
				m.Name))
		}

		_, err := stage.ParseKind(s.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("mode %q: %w", m.Name, err))
		}
	}

	return errs
}
