// Package config provides centralized configuration management for the
// council runtime, covering the HTTP server, review queues, storage
// backends, model providers, and chain connectivity. Values omitted from the
// configuration file fall back to defaults suitable for local development.
package config
