// Package config loads and validates the YAML configuration for a tickflow
// instance. Load expands ${VAR} environment variables before parsing, so
// secrets can stay out of the file.
package config
