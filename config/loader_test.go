package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 768, cfg.Memory.EmbeddingDim)
	assert.Equal(t, 0.1, cfg.Memory.WMDecayRate)
	assert.Equal(t, 7, cfg.Memory.WMPhonologicalCapacity)
	assert.Equal(t, 7, cfg.Memory.WMVisuospatialCapacity)
	assert.Equal(t, 4, cfg.Memory.WMEpisodicBufferCapacity)
	assert.Equal(t, 0.5, cfg.Memory.SurpriseThreshold)
	assert.InDelta(t, 1.0, cfg.Memory.SaliencyWeightFrequency+cfg.Memory.SaliencyWeightRecency+
		cfg.Memory.SaliencyWeightRelevance+cfg.Memory.SaliencyWeightSurprise, 0.001)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 768, cfg.Memory.EmbeddingDim)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  metrics_port: 9999
  read_timeout: 60s

memory:
  embedding_dim: 1536
  wm_decay_rate: 0.2
  surprise_threshold: 0.6

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.MetricsPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 1536, cfg.Memory.EmbeddingDim)
	assert.Equal(t, 0.2, cfg.Memory.WMDecayRate)
	assert.Equal(t, 0.6, cfg.Memory.SurpriseThreshold)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"COGMEM_SERVER_METRICS_PORT":  "7777",
		"COGMEM_MEMORY_EMBEDDING_DIM": "1024",
		"COGMEM_MEMORY_WM_DECAY_RATE": "0.15",
		"COGMEM_REDIS_ADDR":           "env-redis:6379",
		"COGMEM_LOG_LEVEL":            "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.MetricsPort)
	assert.Equal(t, 1024, cfg.Memory.EmbeddingDim)
	assert.Equal(t, 0.15, cfg.Memory.WMDecayRate)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  metrics_port: 9999
memory:
  embedding_dim: 512
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("COGMEM_SERVER_METRICS_PORT", "8888")
	os.Setenv("COGMEM_MEMORY_EMBEDDING_DIM", "2048")
	defer func() {
		os.Unsetenv("COGMEM_SERVER_METRICS_PORT")
		os.Unsetenv("COGMEM_MEMORY_EMBEDDING_DIM")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.MetricsPort)
	assert.Equal(t, 2048, cfg.Memory.EmbeddingDim)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_SERVER_METRICS_PORT", "6666")
	defer os.Unsetenv("MYAPP_SERVER_METRICS_PORT")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.MetricsPort)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Memory.EmbeddingDim < 1 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("COGMEM_MEMORY_EMBEDDING_DIM", "0")
	defer os.Unsetenv("COGMEM_MEMORY_EMBEDDING_DIM")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  metrics_port: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid embedding dim",
			modify: func(c *Config) {
				c.Memory.EmbeddingDim = 0
			},
			wantErr: true,
		},
		{
			name: "invalid phonological capacity",
			modify: func(c *Config) {
				c.Memory.WMPhonologicalCapacity = 0
			},
			wantErr: true,
		},
		{
			name: "saliency weights do not sum to 1",
			modify: func(c *Config) {
				c.Memory.SaliencyWeightFrequency = 0.5
			},
			wantErr: true,
		},
		{
			name: "retrieval weight out of range (negative)",
			modify: func(c *Config) {
				c.Memory.RetrievalCombinedSemanticWeight = -0.1
			},
			wantErr: true,
		},
		{
			name: "retrieval weight out of range (too high)",
			modify: func(c *Config) {
				c.Memory.RetrievalCombinedSemanticWeight = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     3306,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name: "sqlite DSN",
			config: DatabaseConfig{
				Driver: "sqlite",
				Name:   "/path/to/db.sqlite",
			},
			expected: "/path/to/db.sqlite",
		},
		{
			name: "unknown driver",
			config: DatabaseConfig{
				Driver: "unknown",
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  metrics_port: 9091
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 9091, cfg.Server.MetricsPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("COGMEM_MEMORY_EMBEDDING_DIM", "384")
	defer os.Unsetenv("COGMEM_MEMORY_EMBEDDING_DIM")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Memory.EmbeddingDim)
}
