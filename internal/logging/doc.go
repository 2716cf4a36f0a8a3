// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON lines on stderr
//   - Development: colored console output with callers and stacktraces
//
// Libraries in this module take a *zap.Logger and fall back to
// zap.NewNop(); the CLI builds the real one here and hands out
// per-component children.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
//	logger.Script("main.user.js").Info("Script finished", zap.Duration("duration", d))
package logging
