// Package tgui provides small Telegram UI helpers:
//   - inline keyboard builders
//   - callback data helpers ("ns:action:args")
//   - an HTML message builder with escaping by default
package tgui
