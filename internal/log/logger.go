// Package log provides a global logger with a configurable level. Requests and
// responses exchanged with the owners backend are logged at the debug level,
// which exposes session credentials; enable it only when diagnosing issues.

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs failures that require user action.
	LevelWarning              // Logs conditions that are expected to occur occasionally.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs request/response IO.
)

var (
	mu     sync.Mutex
	level  Level
	output io.Writer = os.Stderr
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log messages to w. The default is os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func emit(l Level, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l > level {
		return
	}
	msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[l])
	msg += fmt.Sprintf(format, a...)
	fmt.Fprintln(output, msg)
}

func Debug(format string, a ...interface{}) {
	emit(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	emit(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	emit(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	emit(LevelError, format, a...)
}
