// Package logger wraps zap with a global sugared logger, context helpers
// and level parsing. Installers take the logger from the context so that
// verbose runs can scope a debug logger to a single call.
package logger
