// Package config loads replication settings from an optional JSON file with
// environment overrides. Defaults match the tuning the replication core was
// designed around: a 30 Hz authoritative tick with a tenth of a second of
// interpolation delay.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete runtime configuration for either role.
type Config struct {
	// ListenAddr is where the server serves /ws and /diagnostics.
	ListenAddr string `json:"listenAddr" mapstructure:"listenAddr"`
	// ServerURL is the websocket endpoint a client dials.
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	// LogLevel is a zerolog level name.
	LogLevel string `json:"logLevel" mapstructure:"logLevel"`

	// UpdateFrequency is the authoritative tick rate in frames per second.
	UpdateFrequency float64 `json:"updateFrequency" mapstructure:"updateFrequency"`
	// InterpolationDelay is how far behind server time clients render,
	// in seconds.
	InterpolationDelay float64 `json:"interpolationDelay" mapstructure:"interpolationDelay"`
	// ExtrapolationLimit caps projection past the last received frame,
	// in seconds.
	ExtrapolationLimit float64 `json:"extrapolationLimit" mapstructure:"extrapolationLimit"`

	// ClientTracing is the client-side history window in seconds.
	ClientTracing float64 `json:"clientTracing" mapstructure:"clientTracing"`
	// ServerTracing is the server-side history window in seconds.
	ServerTracing float64 `json:"serverTracing" mapstructure:"serverTracing"`
	// RelevanceTimeout is how long an irrelevant object stays synced before
	// the server stops tracking it for a connection, in seconds.
	RelevanceTimeout float64 `json:"relevanceTimeout" mapstructure:"relevanceTimeout"`

	// TimeSnapThreshold is the clock error, in frames, beyond which the
	// client snaps instead of dilating.
	TimeSnapThreshold float64 `json:"timeSnapThreshold" mapstructure:"timeSnapThreshold"`
	// MinTimeDilation and MaxTimeDilation bound the replica clock rate.
	MinTimeDilation float64 `json:"minTimeDilation" mapstructure:"minTimeDilation"`
	MaxTimeDilation float64 `json:"maxTimeDilation" mapstructure:"maxTimeDilation"`

	// PositionSnapThreshold is the distance beyond which a transform jumps
	// instead of blending.
	PositionSnapThreshold float64 `json:"positionSnapThreshold" mapstructure:"positionSnapThreshold"`
	// SmoothingConstant drives exponential correction decay.
	SmoothingConstant float64 `json:"smoothingConstant" mapstructure:"smoothingConstant"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("serverUrl", "ws://localhost:8080/ws")
	v.SetDefault("logLevel", "info")

	v.SetDefault("updateFrequency", 30.0)
	v.SetDefault("interpolationDelay", 0.1)
	v.SetDefault("extrapolationLimit", 0.5)

	v.SetDefault("clientTracing", 3.0)
	v.SetDefault("serverTracing", 5.0)
	v.SetDefault("relevanceTimeout", 5.0)

	v.SetDefault("timeSnapThreshold", 2.5)
	v.SetDefault("minTimeDilation", 0.7)
	v.SetDefault("maxTimeDilation", 1.5)

	v.SetDefault("positionSnapThreshold", 5.0)
	v.SetDefault("smoothingConstant", 8.0)
}

// Load reads replicast.cfg.json from configDir, if present, on top of the
// defaults. Environment variables prefixed REPLICAST_ override both.
func Load(configDir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("replicast.cfg.json")
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("replicast")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the replication core cannot run with.
func (c Config) Validate() error {
	if c.UpdateFrequency <= 0 {
		return fmt.Errorf("config: updateFrequency must be positive, got %v", c.UpdateFrequency)
	}
	if c.ClientTracing <= 0 || c.ServerTracing <= 0 {
		return fmt.Errorf("config: tracing durations must be positive")
	}
	if c.MinTimeDilation <= 0 || c.MaxTimeDilation < c.MinTimeDilation {
		return fmt.Errorf("config: time dilation bounds %v..%v are invalid", c.MinTimeDilation, c.MaxTimeDilation)
	}
	return nil
}

// ServerTraceFrames is the server-side ring capacity.
func (c Config) ServerTraceFrames() int {
	return traceFrames(c.ServerTracing, c.UpdateFrequency)
}

// ClientTraceFrames is the client-side ring capacity.
func (c Config) ClientTraceFrames() int {
	return traceFrames(c.ClientTracing, c.UpdateFrequency)
}

// MaxExtrapolationFrames converts the extrapolation limit to whole frames.
func (c Config) MaxExtrapolationFrames() int {
	return int(math.Ceil(c.ExtrapolationLimit * c.UpdateFrequency))
}

func traceFrames(seconds, frequency float64) int {
	frames := int(math.Ceil(seconds * frequency))
	if frames < 1 {
		frames = 1
	}
	return frames
}
