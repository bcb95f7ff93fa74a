// Package config provides centralized configuration management for the
// OpenAgent runtime, loading a JSON configuration file resolved from an
// explicit path or the OPENAGENT_CONFIG environment variable and applying
// sensible defaults for unset fields.
package config
