// Package config loads the scribe YAML configuration. Every section has a
// Validate method and Load fails on the first invalid section.
package config
