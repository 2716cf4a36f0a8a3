// Package app wires the scriptkit components into the CLI commands.
//
// An App owns the loaded configuration, the logger and optional metrics,
// and exposes one method per command:
//
//   - Run: replays a page into a live document and runs userscripts
//     against it once their run-at moment is reached
//   - Sign: signs request parameters with the WBI scheme
//   - Leaves: lists the deepest leaves of a JSON or YAML document
//   - Pack: prepares, without sending, a multipart request
//
// Example Usage:
//
//	a := app.New(cfg, logger, app.WithMetrics(metrics))
//	results, err := a.Run(ctx, app.RunOptions{
//	    Scripts: []app.Script{{Name: "main.js", Source: src}},
//	    Page:    page,
//	    RunAt:   "document-body",
//	})
package app
