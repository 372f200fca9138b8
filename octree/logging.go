package octree

import "go.uber.org/zap"

// Logger is the logging surface the map uses to report allocator
// exhaustion, pruning decisions and serialization failures. It is
// satisfied directly by *zap.SugaredLogger; NewLogger and NoopLogger
// construct the two loggers the map is typically built with.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// NewLogger returns a production zap-backed Logger writing to stderr.
func NewLogger() Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	l, err := cfg.Build()
	if err != nil {
		return noopLogger{}
	}
	return l.Sugar()
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// NoopLogger returns a Logger that discards everything, the default for
// a map constructed without an explicit WithLogger option.
func NoopLogger() Logger { return noopLogger{} }
