// Package nlog provides the leveled, low-overhead logger used throughout
// the core: a thin wrapper over the standard library's log.Logger, not a
// structured-logging framework.
package nlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls which calls actually reach the underlying writer.
type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

var (
	mu     sync.Mutex
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	level  = LevelInfo
)

// SetOutput redirects all subsequent log lines; tests use this to capture
// output or silence it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// SetLevel bounds which severities are emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func emit(l Level, tag string, s string) {
	mu.Lock()
	defer mu.Unlock()
	if l > level {
		return
	}
	logger.Output(3, tag+" "+s) //nolint:errcheck
}

func Infoln(v ...any)                 { emit(LevelInfo, "I", fmt.Sprintln(v...)) }
func Infof(format string, v ...any)   { emit(LevelInfo, "I", fmt.Sprintf(format, v...)) }
func Warningln(v ...any)              { emit(LevelWarning, "W", fmt.Sprintln(v...)) }
func Warningf(format string, v ...any) {
	emit(LevelWarning, "W", fmt.Sprintf(format, v...))
}
func Errorln(v ...any)               { emit(LevelError, "E", fmt.Sprintln(v...)) }
func Errorf(format string, v ...any) { emit(LevelError, "E", fmt.Sprintf(format, v...)) }
