// Package config loads and validates the TOML configuration shared by all
// pipeline stages.
package config
