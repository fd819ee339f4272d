package avreel

import "log"

var pkgLogger Logger = log.Default()

// Logger is the minimal logging seam the package writes through. Any type
// satisfying Printf (stdlib *log.Logger included) can be installed via
// SetLogger.
type Logger interface {
	Printf(format string, v ...any)
}

// SetLogger installs a custom logger for the package. The zero value is
// log.Default().
func SetLogger(logger Logger) {
	pkgLogger = logger
}

// debugf and warnf are convenience wrappers distinguishing transient,
// info/debug-level chatter (decoder starvation, resync events) from
// warnings logged for unexpected-but-recoverable conditions.
func debugf(format string, v ...any) { pkgLogger.Printf("DEBUG: "+format, v...) }
func warnf(format string, v ...any)  { pkgLogger.Printf("WARNING: "+format, v...) }
