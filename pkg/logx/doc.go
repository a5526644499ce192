// Package logx configures postbot's structured logging.
//
// It wraps zerolog behind a small value type (logx.Logger) so components can
// derive loggers with fixed fields and keep working across config reloads:
//   - console output: short timestamp + short caller
//   - file output: JSON lines
//   - optional Telegram sink for warnings (min-level + rate limiting)
package logx
