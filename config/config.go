// Package config loads and validates vox-interpret's runtime configuration
// using Viper, with environment variable overrides and struct-tag
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for a worker host process.
type Config struct {
	Transport     TransportConfig     `mapstructure:"transport" validate:"required"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Buffer        BufferConfig        `mapstructure:"buffer"`
	Room          RoomConfig          `mapstructure:"room"`
	Profile       ProfileConfig       `mapstructure:"profile"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// TransportConfig configures the media transport the Audio Router drives.
type TransportConfig struct {
	URL       string `mapstructure:"url" validate:"required"`
	APIKey    string `mapstructure:"api_key" validate:"required"`
	APISecret string `mapstructure:"api_secret" validate:"required"`
}

// ProvidersConfig configures every pluggable STT/Translator/TTS backend.
type ProvidersConfig struct {
	OpenAI struct {
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"openai"`
	Anthropic struct {
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Version string `mapstructure:"version"`
	} `mapstructure:"anthropic"`
	Bedrock struct {
		Region  string `mapstructure:"region"`
		ModelID string `mapstructure:"model_id"`
	} `mapstructure:"bedrock"`
	Ollama struct {
		BaseURL string `mapstructure:"base_url"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"ollama"`
}

// BufferConfig tunes the Translation Buffer's segment lifecycle timing.
type BufferConfig struct {
	InterimTriggerMs int `mapstructure:"interim_trigger_ms" validate:"gt=0"`
	MaxDelayMs       int `mapstructure:"max_delay_ms" validate:"gt=0"`
	SilenceGapMs     int `mapstructure:"silence_gap_ms" validate:"gt=0"`
	MaxPendingPerBuf int `mapstructure:"max_pending_per_buffer" validate:"gt=0"`
}

func (b BufferConfig) InterimTrigger() time.Duration { return time.Duration(b.InterimTriggerMs) * time.Millisecond }
func (b BufferConfig) MaxDelay() time.Duration       { return time.Duration(b.MaxDelayMs) * time.Millisecond }
func (b BufferConfig) SilenceGap() time.Duration     { return time.Duration(b.SilenceGapMs) * time.Millisecond }

// RoomConfig tunes the Room Coordinator's reconciliation loop.
type RoomConfig struct {
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds" validate:"gt=0"`
	EmptyRoomTimeoutSeconds  int `mapstructure:"empty_room_timeout_seconds" validate:"gt=0"`
}

func (r RoomConfig) ReconcileInterval() time.Duration {
	return time.Duration(r.ReconcileIntervalSeconds) * time.Second
}

func (r RoomConfig) EmptyRoomTimeout() time.Duration {
	return time.Duration(r.EmptyRoomTimeoutSeconds) * time.Second
}

// ProfileConfig tunes the Profile Cache.
type ProfileConfig struct {
	TTLMinutes           int `mapstructure:"ttl_minutes" validate:"gt=0"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes" validate:"gt=0"`
}

func (p ProfileConfig) TTL() time.Duration { return time.Duration(p.TTLMinutes) * time.Minute }
func (p ProfileConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMinutes) * time.Minute
}

// ServerConfig configures the internal translation-stats HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ObservabilityConfig configures the optional LLM-call trace exporter used to
// track translation cost and latency. Exporting is disabled unless both keys
// are set.
type ObservabilityConfig struct {
	LangfuseBaseURL   string `mapstructure:"langfuse_base_url"`
	LangfusePublicKey string `mapstructure:"langfuse_public_key"`
	LangfuseSecretKey string `mapstructure:"langfuse_secret_key"`
}

// Enabled reports whether enough Langfuse credentials were provided to build
// an exporter.
func (o ObservabilityConfig) Enabled() bool {
	return o.LangfusePublicKey != "" && o.LangfuseSecretKey != ""
}

// Load reads configuration from file and environment variables, applies
// defaults, and validates the result.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vox-interpret/")
	v.AddConfigPath("$HOME/.vox-interpret")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("VOXINTERPRET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register these keys with viper so that Unmarshal picks
	// up their VOXINTERPRET_* environment variables; AutomaticEnv alone only
	// applies to keys viper already knows about.
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.api_key", "")
	v.SetDefault("transport.api_secret", "")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "")
	v.SetDefault("providers.anthropic.api_key", "")
	v.SetDefault("providers.bedrock.model_id", "")
	v.SetDefault("observability.langfuse_base_url", "")
	v.SetDefault("observability.langfuse_public_key", "")
	v.SetDefault("observability.langfuse_secret_key", "")

	v.SetDefault("providers.openai.model", "whisper-1")
	v.SetDefault("providers.anthropic.model", "claude-3-haiku-20240307")
	v.SetDefault("providers.anthropic.version", "2023-06-01")
	v.SetDefault("providers.bedrock.region", "us-east-1")
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.ollama.model", "llama3")

	v.SetDefault("buffer.interim_trigger_ms", 250)
	v.SetDefault("buffer.max_delay_ms", 500)
	v.SetDefault("buffer.silence_gap_ms", 700)
	v.SetDefault("buffer.max_pending_per_buffer", 8)

	v.SetDefault("room.reconcile_interval_seconds", 5)
	v.SetDefault("room.empty_room_timeout_seconds", 60)

	v.SetDefault("profile.ttl_minutes", 30)
	v.SetDefault("profile.sweep_interval_minutes", 10)

	v.SetDefault("server.addr", ":8088")
}
