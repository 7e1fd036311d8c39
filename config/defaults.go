// Package config default values for every configuration section. DefaultConfig
// returns a config that is valid on its own (Validate will pass) so a fresh
// checkout can run against a local Postgres and embedder without edits.
package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Memory:    DefaultMemoryConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default ops-surface server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultMemoryConfig returns the default memory-substrate tuning parameters.
// Weights and constants mirror the formulas used by saliency, surprise,
// inhibition, consolidation, and retrieval.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		EmbedderURL:     "http://localhost:8081/v1/embed",
		EmbeddingDim:    768,
		EmbedderTimeout: 10 * time.Second,

		WMDecayRate:              0.1,
		WMPhonologicalCapacity:   7,
		WMVisuospatialCapacity:   7,
		WMEpisodicBufferCapacity: 4,
		WMEvictionFloor:          0.1,

		InhibitionHalfLifeSeconds: 1800,
		InhibitionThreshold:       0.3,
		InhibitionFloor:           0.01,

		SaliencyWeightFrequency: 0.30,
		SaliencyWeightRecency:   0.30,
		SaliencyWeightRelevance: 0.25,
		SaliencyWeightSurprise:  0.15,

		SurpriseThreshold: 0.5,

		PipelineEventLimit:  100,
		ConsolidationFanout: 4,

		RetrievalCombinedSemanticWeight: 0.7,

		ClassifierMinTrainingRows:           10,
		ClassifierRetrainFeedbackThreshold: 10,

		LRUSize:                 1000,
		DistributedCacheEnabled: false,
	}
}

// DefaultRedisConfig returns the default Redis connection configuration, used
// only when DistributedCacheEnabled is set.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default database connection configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "cogmem",
		Password:        "",
		Name:            "cogmem",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLLMConfig returns the default configuration for the optional LLM
// assist used for surprise and contradiction classification. Disabled by default.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Enabled:    false,
		BaseURL:    "",
		APIKey:     "",
		Model:      "",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
// Disabled by default so a local run never dials an OTLP collector.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "cogmem",
		SampleRate:   0.1,
	}
}
