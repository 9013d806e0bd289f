// Package config loads and validates the memory engine's configuration.
package config
