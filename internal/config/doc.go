// Package config provides 12-factor configuration for the scriptkit CLI.
//
// Configuration is loaded from environment variables with defaults in
// struct tags. An optional TOML file can supply a base; variables that
// are set override it.
//
// Configuration Sections:
//   - Logging: log level and output format
//   - Sandbox: script timeout, console capture, default run-at moment
//   - Loader: delay between replayed page lifecycle steps
//   - WBI: signing keys
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("scripts time out after %s\n", cfg.Sandbox.Timeout)
//
// Environment Variables:
//   - LOG_LEVEL, LOG_DEV
//   - SANDBOX_TIMEOUT, SANDBOX_CONSOLE, SANDBOX_RUN_AT
//   - LOADER_STEP_DELAY
//   - WBI_IMG_KEY, WBI_SUB_KEY
package config
