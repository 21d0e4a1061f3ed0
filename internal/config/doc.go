// Package config provides configuration loading and validation for the washing sensor service.
// It handles YAML-based configuration with struct validation, per-section defaults
// and duration helpers for time-valued settings.
package config
