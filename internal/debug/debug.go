// Package debug provides diagnostic output and the rotating operations
// log. Diagnostics go to stderr when RIVET_DEBUG is set; the operations
// log records one line per executed command under .rivet/ops.log with
// size-based rotation.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled     = os.Getenv("RIVET_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	opsMu  sync.Mutex
	opsLog *lumberjack.Logger
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// InitOpsLog points the operations log at the given data directory. Safe
// to skip: logging without initialization is a no-op.
func InitOpsLog(rivetDir string) {
	opsMu.Lock()
	defer opsMu.Unlock()
	opsLog = &lumberjack.Logger{
		Filename:   filepath.Join(rivetDir, "ops.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// LogOp appends one line to the operations log. Failures are silent; the
// log must never break a command.
func LogOp(command string, args []string, err error) {
	opsMu.Lock()
	defer opsMu.Unlock()
	if opsLog == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error: " + err.Error()
	}
	line := fmt.Sprintf("%s|%s|%v|%s\n",
		time.Now().UTC().Format(time.RFC3339), command, args, status)
	_, _ = opsLog.Write([]byte(line))
}

// CloseOpsLog flushes and closes the operations log
func CloseOpsLog() {
	opsMu.Lock()
	defer opsMu.Unlock()
	if opsLog != nil {
		_ = opsLog.Close()
		opsLog = nil
	}
}
