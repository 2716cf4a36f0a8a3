// Package main is the scriptkit command line tool.
//
// scriptkit runs userscripts in a sandboxed JavaScript runtime against a
// replayed HTML page, and exposes the helper utilities directly.
//
// Commands:
//
//	scriptkit run -script a.js [-script 'scripts/**/*.user.js'] [-page page.html.gz] [-run-at moment]
//	scriptkit sign -params params.json [-img-key key] [-sub-key key]
//	scriptkit leaves -input data.yaml
//	scriptkit pack -fields fields.json [-file avatar=me.png] -url https://example.com/upload
//
// Global flags come before the command:
//
//	-config file.toml   TOML configuration; environment variables override it
//	-dev                development logging (debug level, console encoding)
//	-log-level level    override the configured log level
//	-metrics-file path  write Prometheus metrics in text format on exit
//
// Configuration:
//   - Environment variables (LOG_LEVEL, SANDBOX_TIMEOUT, WBI_IMG_KEY, ...)
//   - Optional TOML file
//   - CLI flags (override both)
//
// Output is JSON on stdout. Logs go to stderr.
//
// Signals:
//   - SIGINT, SIGTERM: cancel running scripts
package main
