// Package config handles loading, validation, and access to RoastSight Core
// configuration.
//
// Configuration is loaded from a YAML file with environment variable
// overrides, in the order: defaults, file values, environment variables.
// Environment variables use the ROASTSIGHT_ prefix (for example
// ROASTSIGHT_API_PORT).
package config
