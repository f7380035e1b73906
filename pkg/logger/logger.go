package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.Mutex
	minLevel = LevelInfo

	debugTag = color.New(color.FgCyan).Sprint("DEBUG")
	infoTag  = color.New(color.FgGreen).Sprint("INFO ")
	warnTag  = color.New(color.FgYellow).Sprint("WARN ")
	errorTag = color.New(color.FgRed).Sprint("ERROR")
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

func logf(l Level, tag, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if l < minLevel {
		return
	}

	ts := time.Now().Format("2006/01/02 15:04:05")
	fmt.Fprintf(os.Stderr, "%s [%s] %s\n", ts, tag, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any) {
	logf(LevelDebug, debugTag, format, args...)
}

func Info(format string, args ...any) {
	logf(LevelInfo, infoTag, format, args...)
}

func Warn(format string, args ...any) {
	logf(LevelWarn, warnTag, format, args...)
}

func Error(format string, args ...any) {
	logf(LevelError, errorTag, format, args...)
}
