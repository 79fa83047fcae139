package log

import "sync"

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
)

// SetDefault installs the process-wide logger. The root command calls it
// once flags and environment settings are known.
func SetDefault(logger *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// L returns the process-wide logger, creating a default one on first use.
func L() *Logger {
	loggerMu.RLock()
	logger := defaultLogger
	loggerMu.RUnlock()
	if logger != nil {
		return logger
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = Default()
	}
	return defaultLogger
}
