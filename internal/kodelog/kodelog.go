// Package kodelog wraps zap with the defaults used across kode's internal
// packages: a single constructor that never returns an error a caller has to
// handle, falling back to a no-op logger if construction fails.
package kodelog

import "go.uber.org/zap"

// New builds a production zap.Logger. Callers that don't care about logging
// (tests, one-off tools) can pass the result of New(false) around freely; it
// never panics and never returns nil.
func New(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// Nop returns a logger that discards everything, for tests and callers that
// haven't wired one up yet.
func Nop() *zap.Logger {
	return zap.NewNop()
}
