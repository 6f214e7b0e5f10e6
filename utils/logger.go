package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger provides leveled, timestamped logging throughout the application.
// Loggers derived with With share the parent's outputs.
type Logger struct {
	info   *log.Logger
	warn   *log.Logger
	err    *log.Logger
	debug  *log.Logger
	prefix string
	quiet  bool
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{
		info:  log.New(os.Stdout, "", 0),
		warn:  log.New(os.Stdout, "", 0),
		err:   log.New(os.Stderr, "", 0),
		debug: log.New(os.Stdout, "", 0),
		quiet: os.Getenv("DEBUG") == "",
	}
}

// NewLoggerTo sends every level, debug included, to w.
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{
		info:  log.New(w, "", 0),
		warn:  log.New(w, "", 0),
		err:   log.New(w, "", 0),
		debug: log.New(w, "", 0),
	}
}

// With returns a Logger that tags every line with "[component]".
func (l *Logger) With(component string) *Logger {
	child := *l
	child.prefix = "[" + component + "] "
	return &child
}

func (l *Logger) line(level, format string) string {
	return fmt.Sprintf("[%s] %s %s%s\n", time.Now().Format("2006-01-02 15:04:05"), level, l.prefix, format)
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(l.line("\033[32mINFO\033[0m ", format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(l.line("\033[33mWARN\033[0m ", format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(l.line("\033[31mERROR\033[0m", format), args...)
}

// Debug is silent unless DEBUG is set in the environment.
func (l *Logger) Debug(format string, args ...any) {
	if l.quiet {
		return
	}
	l.debug.Printf(l.line("\033[36mDEBUG\033[0m", format), args...)
}
