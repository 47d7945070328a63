// Package zvtlog sets up the library-wide logger used by sequence,
// reconnect, firmware, feig and cmd/zvtctl.
package zvtlog

import (
	"os"

	"github.com/op/go-logging"
)

var Log = logging.MustGetLogger("zvt")

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} zvt ▶ %{message}`,
)

// Setup installs a stderr logging backend at defaultLevel, overridable via
// the ZVT_LOG_LEVEL environment variable.
func Setup(defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)

	switch os.Getenv("ZVT_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "")
	case "INFO":
		leveled.SetLevel(logging.INFO, "")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "")
	default:
		leveled.SetLevel(defaultLevel, "")
	}

	logging.SetBackend(leveled)
	return Log
}
