package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "GRADELENS_"
	envConfigFile = "GRADELENS_CONFIG"
	envGroqAPIKey = "GROQ_API_KEY"

	DefaultInsightEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultInsightModel    = "llama-3.3-70b-versatile"
)

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr      string `koanf:"addr" validate:"required"`
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// DBPath enables analysis history. Empty disables it.
	DBPath string `koanf:"db_path"`

	// JWTSecret verifies HS256 bearer tokens. Empty disables the auth gate.
	JWTSecret string `koanf:"jwt_secret"`

	// CORSOrigins is a comma-separated allow list.
	CORSOrigins string `koanf:"cors_origins" validate:"required"`

	MaxUploadMB     int           `koanf:"max_upload_mb" validate:"min=1,max=512"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`

	InsightEnabled  bool          `koanf:"insight_enabled"`
	InsightEndpoint string        `koanf:"insight_endpoint" validate:"required,url"`
	InsightModel    string        `koanf:"insight_model" validate:"required"`
	InsightAPIKey   string        `koanf:"insight_api_key"`
	InsightTimeout  time.Duration `koanf:"insight_timeout" validate:"min=0"`
}

// NewServerConfig returns the defaults.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:            ":5000",
		LogLevel:        "info",
		LogFormat:       "text",
		DBPath:          DefaultDBPath(),
		CORSOrigins:     "*",
		MaxUploadMB:     20,
		ShutdownTimeout: 10 * time.Second,
		InsightEnabled:  true,
		InsightEndpoint: DefaultInsightEndpoint,
		InsightModel:    DefaultInsightModel,
		InsightTimeout:  30 * time.Second,
	}
}

// AllowedOrigins splits CORSOrigins.
func (c *ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (c *ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LoadServer layers, lowest first: defaults, the YAML file named by
// GRADELENS_CONFIG, then GRADELENS_* variables. GROQ_API_KEY fills an unset
// insight key.
func LoadServer() (*ServerConfig, error) {
	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// GRADELENS_MAX_UPLOAD_MB -> max_upload_mb
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := NewServerConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.InsightAPIKey == "" {
		cfg.InsightAPIKey = os.Getenv(envGroqAPIKey)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
