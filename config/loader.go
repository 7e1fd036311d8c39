// Package config loads the cogmem configuration from YAML with
// environment-variable overrides applied by reflection.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("COGMEM").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete cogmem configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the optional ops surface (metrics/health) that
// cmd/cogmemd exposes. It is not a correctness surface for the memory core.
type ServerConfig struct {
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// RateLimitRPS is the per-visitor sustained request rate the ops
	// surface allows before returning 429. Zero disables rate limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-visitor token bucket burst size.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// MemoryConfig carries every tunable named in the external-interfaces
// section of the specification: embedder wiring, working-memory capacities
// and decay, inhibition half-life, saliency weights, surprise threshold,
// pipeline limits, and the retrieval combination weight.
type MemoryConfig struct {
	// EmbedderURL is the base URL of the HTTP embedder provider.
	EmbedderURL string `yaml:"embedder_url" env:"EMBEDDER_URL"`
	// EmbeddingDim is the enforced embedding dimension D.
	EmbeddingDim int `yaml:"embedding_dim" env:"EMBEDDING_DIM"`
	// EmbedderTimeout bounds embedder calls before falling back to keyword
	// paths (EmbeddingUnavailable).
	EmbedderTimeout time.Duration `yaml:"embedder_timeout" env:"EMBEDDER_TIMEOUT"`

	// WMDecayRate is the base exponential decay rate (default 0.1/s).
	WMDecayRate float64 `yaml:"wm_decay_rate" env:"WM_DECAY_RATE"`
	// WMPhonologicalCapacity is the phonological-loop slot count.
	WMPhonologicalCapacity int `yaml:"wm_phonological_capacity" env:"WM_PHONOLOGICAL_CAPACITY"`
	// WMVisuospatialCapacity is the visuospatial-sketchpad slot count.
	WMVisuospatialCapacity int `yaml:"wm_visuospatial_capacity" env:"WM_VISUOSPATIAL_CAPACITY"`
	// WMEpisodicBufferCapacity is the episodic-buffer slot count.
	WMEpisodicBufferCapacity int `yaml:"wm_episodic_buffer_capacity" env:"WM_EPISODIC_BUFFER_CAPACITY"`
	// WMEvictionFloor is the activation floor below which an item is a
	// consolidation candidate regardless of capacity.
	WMEvictionFloor float64 `yaml:"wm_eviction_floor" env:"WM_EVICTION_FLOOR"`

	// InhibitionHalfLifeSeconds is the inhibition decay half-life H.
	InhibitionHalfLifeSeconds int `yaml:"inhibition_half_life_s" env:"INHIBITION_HALF_LIFE_S"`
	// InhibitionThreshold is the default is_inhibited() crossing point.
	InhibitionThreshold float64 `yaml:"inhibition_threshold" env:"INHIBITION_THRESHOLD"`
	// InhibitionFloor is the decay_inhibitions() purge floor.
	InhibitionFloor float64 `yaml:"inhibition_floor" env:"INHIBITION_FLOOR"`

	// SaliencyWeightFrequency..SaliencyWeightSurprise must sum to 1.
	SaliencyWeightFrequency float64 `yaml:"saliency_weight_frequency" env:"SALIENCY_WEIGHT_FREQUENCY"`
	SaliencyWeightRecency   float64 `yaml:"saliency_weight_recency" env:"SALIENCY_WEIGHT_RECENCY"`
	SaliencyWeightRelevance float64 `yaml:"saliency_weight_relevance" env:"SALIENCY_WEIGHT_RELEVANCE"`
	SaliencyWeightSurprise  float64 `yaml:"saliency_weight_surprise" env:"SALIENCY_WEIGHT_SURPRISE"`

	// SurpriseThreshold is the boundary-emission cutoff theta.
	SurpriseThreshold float64 `yaml:"surprise_threshold" env:"SURPRISE_THRESHOLD"`

	// PipelineEventLimit bounds the per-invocation surprise-scan window.
	PipelineEventLimit int `yaml:"pipeline_event_limit" env:"PIPELINE_EVENT_LIMIT"`

	// ConsolidationFanout bounds how many working-memory items the
	// consolidate stage routes concurrently per Run.
	ConsolidationFanout int `yaml:"consolidation_fanout" env:"CONSOLIDATION_FANOUT"`

	// RetrievalCombinedSemanticWeight is the semantic share of the
	// combined retrieval score; (1 - this) is the spatial share.
	RetrievalCombinedSemanticWeight float64 `yaml:"retrieval_combined_semantic_weight" env:"RETRIEVAL_COMBINED_SEMANTIC_WEIGHT"`

	// ClassifierMinTrainingRows is the minimum positively-labeled route
	// count before the tabular classifier trains.
	ClassifierMinTrainingRows int `yaml:"classifier_min_training_rows" env:"CLASSIFIER_MIN_TRAINING_ROWS"`
	// ClassifierRetrainFeedbackThreshold triggers a lazy retrain once
	// pending feedback exceeds this count.
	ClassifierRetrainFeedbackThreshold int `yaml:"classifier_retrain_feedback_threshold" env:"CLASSIFIER_RETRAIN_FEEDBACK_THRESHOLD"`

	// LRUSize bounds the per-project in-process embedding/result caches.
	LRUSize int `yaml:"lru_size" env:"LRU_SIZE"`
	// DistributedCacheEnabled turns on the optional Redis tier.
	DistributedCacheEnabled bool `yaml:"distributed_cache_enabled" env:"DISTRIBUTED_CACHE_ENABLED"`
}

// RedisConfig configures the optional distributed cache tier.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the store kernel's backing SQL database.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LLMConfig configures the optional LLM collaborator used for surprise and
// contradiction classification (spec.md §6, "LLM (optional)").
type LLMConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Model      string        `yaml:"model" env:"MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads Config with a builder-style API.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the default "COGMEM" env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COGMEM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds a Config: defaults, then YAML file, then environment
// variables, then validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads config from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks invariants that DefaultConfig satisfies but a YAML
// override or env var could break.
func (c *Config) Validate() error {
	var errs []string

	if c.Memory.EmbeddingDim <= 0 {
		errs = append(errs, "embedding_dim must be positive")
	}
	if c.Memory.WMPhonologicalCapacity <= 0 || c.Memory.WMVisuospatialCapacity <= 0 || c.Memory.WMEpisodicBufferCapacity <= 0 {
		errs = append(errs, "working memory capacities must be positive")
	}
	sum := c.Memory.SaliencyWeightFrequency + c.Memory.SaliencyWeightRecency +
		c.Memory.SaliencyWeightRelevance + c.Memory.SaliencyWeightSurprise
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, "saliency weights must sum to 1")
	}
	if c.Memory.RetrievalCombinedSemanticWeight < 0 || c.Memory.RetrievalCombinedSemanticWeight > 1 {
		errs = append(errs, "retrieval_combined_semantic_weight must be in [0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
