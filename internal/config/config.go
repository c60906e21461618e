// Package config loads blueprint settings from defaults, an optional YAML
// file, .env files and BLUEPRINT_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/HendryAvila/blueprint/internal/embedding"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/store"
	"github.com/HendryAvila/blueprint/internal/tenant"
)

// EnvPrefix prefixes every environment override: BLUEPRINT_EMBEDDING_PROVIDER
// sets embedding.provider.
const EnvPrefix = "BLUEPRINT"

// Config is the complete runtime configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	CatalogDir string           `mapstructure:"catalog_dir"`
	Log        LogConfig        `mapstructure:"log"`
	Pipeline   pipeline.Config  `mapstructure:"pipeline"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Embedding  embedding.Config `mapstructure:"embedding"`
	Tenant     TenantConfig     `mapstructure:"tenant"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// MatchingConfig holds the scoring thresholds.
type MatchingConfig struct {
	RuleMinScore   float64 `mapstructure:"rule_min_score"`
	VectorMinScore float64 `mapstructure:"vector_min_score"`
	FusionAlpha    float64 `mapstructure:"fusion_alpha"`
	LowConfidence  float64 `mapstructure:"low_confidence"`
}

// TenantConfig sizes the tenant context cache.
type TenantConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:  store.DefaultConfig().DataDir,
		Log:      LogConfig{Level: "info", Format: "json"},
		Pipeline: pipeline.DefaultConfig(),
		Matching: MatchingConfig{
			RuleMinScore:   patterns.DefaultMinScore,
			VectorMinScore: prediction.DefaultVectorMinScore,
			FusionAlpha:    patterns.DefaultFusionAlpha,
			LowConfidence:  0.5,
		},
		Embedding: embedding.DefaultConfig(),
		Tenant:    TenantConfig{CacheSize: tenant.DefaultCacheSize},
		HTTP:      HTTPConfig{Addr: ":8080"},
	}
}

// Load reads configuration. path names a YAML file; when empty,
// $HOME/.blueprint.yaml and then ./.blueprint.yaml are tried and may be absent.
// A .env file in the working directory is loaded first without overriding
// variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".blueprint")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.CatalogDir = expandHome(cfg.CatalogDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("catalog_dir", d.CatalogDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("pipeline.enable_auto_fix", d.Pipeline.EnableAutoFix)
	v.SetDefault("pipeline.max_auto_fix_attempts", d.Pipeline.MaxAutoFixAttempts)
	v.SetDefault("matching.rule_min_score", d.Matching.RuleMinScore)
	v.SetDefault("matching.vector_min_score", d.Matching.VectorMinScore)
	v.SetDefault("matching.fusion_alpha", d.Matching.FusionAlpha)
	v.SetDefault("matching.low_confidence", d.Matching.LowConfidence)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.api_key", d.Embedding.GenAIAPIKey)
	v.SetDefault("embedding.model", d.Embedding.GenAIModel)
	v.SetDefault("embedding.task_type", d.Embedding.TaskType)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("tenant.cache_size", d.Tenant.CacheSize)
	v.SetDefault("http.addr", d.HTTP.Addr)
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: use debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: use json or console", c.Log.Format))
	}
	if c.Pipeline.MaxAutoFixAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_auto_fix_attempts must be >= 0, got %d", c.Pipeline.MaxAutoFixAttempts))
	}
	for name, val := range map[string]float64{
		"matching.rule_min_score":   c.Matching.RuleMinScore,
		"matching.vector_min_score": c.Matching.VectorMinScore,
		"matching.fusion_alpha":     c.Matching.FusionAlpha,
		"matching.low_confidence":   c.Matching.LowConfidence,
	} {
		if val < 0 || val > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %g", name, val))
		}
	}
	switch c.Embedding.Provider {
	case embedding.ProviderNone, embedding.ProviderHash:
	case embedding.ProviderGenAI:
		if c.Embedding.GenAIAPIKey == "" {
			errs = append(errs, errors.New("embedding.api_key is required for the genai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q: use genai, hash or none", c.Embedding.Provider))
	}
	if c.Embedding.Provider == embedding.ProviderHash && c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be > 0, got %d", c.Embedding.Dimensions))
	}
	if c.Tenant.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("tenant.cache_size must be > 0, got %d", c.Tenant.CacheSize))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
