// Package rlog is a small hand-rolled structured logger, singleton
// accessed, in the style used throughout this codebase's ambient
// plumbing rather than a third-party logging framework.
package rlog

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LEVELS
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// STRUCTURED LOG ENTRY
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	File      string         `json:"file,omitempty"`
	Line      int            `json:"line,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// LOGGER IS A STRUCTURED LOGGER
type Logger struct {
	mu       sync.Mutex
	minLevel string
	console  bool
}

var defaultLogger *Logger
var loggerOnce sync.Once

// GETLOGGER RETURNS THE SINGLETON LOGGER INSTANCE
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		defaultLogger = &Logger{minLevel: LevelInfo, console: true}
	})
	return defaultLogger
}

// NEWLOGGER CREATES A STANDALONE LOGGER (useful in tests)
func NewLogger(minLevel string, console bool) *Logger {
	return &Logger{minLevel: minLevel, console: console}
}

// LOG LOGS A MESSAGE WITH THE SPECIFIED LEVEL
func (l *Logger) Log(level, message string, data map[string]any) {
	if !isLevelEnabled(l.minLevel, level) {
		return
	}

	entry := LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Data:      data,
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File = file
		entry.Line = line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.console {
		return
	}

	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", level, entry.Timestamp, entry.Message)
	if len(data) > 0 {
		dataJSON, _ := json.Marshal(data)
		fmt.Fprintf(os.Stderr, "  %s\n", dataJSON)
	}
}

func (l *Logger) Debug(message string, data map[string]any) { l.Log(LevelDebug, message, data) }
func (l *Logger) Info(message string, data map[string]any)  { l.Log(LevelInfo, message, data) }
func (l *Logger) Warn(message string, data map[string]any)  { l.Log(LevelWarn, message, data) }
func (l *Logger) Error(message string, data map[string]any) { l.Log(LevelError, message, data) }
func (l *Logger) Fatal(message string, data map[string]any) { l.Log(LevelFatal, message, data) }

func isLevelEnabled(minLevel, level string) bool {
	levels := map[string]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
		LevelFatal: 4,
	}
	minLevelValue, minOk := levels[minLevel]
	levelValue, levelOk := levels[level]
	if !minOk || !levelOk {
		return true
	}
	return levelValue >= minLevelValue
}
