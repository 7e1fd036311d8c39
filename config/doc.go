/*
Package config manages the memory substrate's configuration lifecycle:
multi-source loading, runtime hot reload, change auditing, and an HTTP
management API. Configuration merges in priority order: defaults -> YAML
file -> environment variables.

# Core types

  - Config: top-level aggregate covering Server, Memory, Redis, Database,
    LLM, Log, and Telemetry sections.
  - Loader: builder-style loader for the file path, environment prefix, and
    any custom validators.
  - HotReloadManager: watches the config file, applies safe field-level
    updates without a restart, and keeps a bounded change log.
  - FileWatcher: poll-and-debounce file change detector used by
    HotReloadManager.
  - ConfigAPIHandler: HTTP handler exposing config inspection, reload, and
    change-history endpoints.

# Example

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("COGMEM").
		Load()
*/
package config
