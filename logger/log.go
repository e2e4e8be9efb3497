package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	nocolor   = "0"
	red       = "31"
	yellow    = "33"
	cyan      = "1;36"
	gray      = "38;5;251"
	lightgray = "38;5;243"
)

// DateFormat is the timestamp layout used on every log line.
const DateFormat = "2006-01-02 15:04:05"

var mutex = sync.Mutex{}

// Logger is the logging interface shared by every component of the API
// service. Components receive a Logger in their constructor and may derive a
// prefixed copy for their own lines.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Notice(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)

	WithPrefix(prefix string) Logger
	SetLevel(level Level)
	Level() Level
}

// TextLogger writes human-readable log lines to a writer, one per call.
type TextLogger struct {
	MinLevel Level
	Colors   bool
	Prefix   string
	Writer   io.Writer
	ExitFn   func()
}

// NewTextLogger returns a logger writing to stderr at NOTICE level, with
// colors when stdout is a terminal.
func NewTextLogger() Logger {
	return &TextLogger{
		MinLevel: NOTICE,
		Colors:   ColorsAvailable(),
		Writer:   os.Stderr,
	}
}

// ColorsAvailable reports whether ANSI colors can be shown.
func ColorsAvailable() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// WithPrefix returns a copy of the logger with the provided prefix.
func (l *TextLogger) WithPrefix(prefix string) Logger {
	clone := *l
	clone.Prefix = prefix
	return &clone
}

// SetLevel sets the minimum level written by the logger.
func (l *TextLogger) SetLevel(level Level) {
	l.MinLevel = level
}

// Level returns the minimum level written by the logger.
func (l *TextLogger) Level() Level {
	return l.MinLevel
}

func (l *TextLogger) Debug(format string, v ...any) {
	if l.MinLevel <= DEBUG {
		l.log(DEBUG, format, v...)
	}
}

func (l *TextLogger) Info(format string, v ...any) {
	if l.MinLevel <= INFO {
		l.log(INFO, format, v...)
	}
}

func (l *TextLogger) Notice(format string, v ...any) {
	if l.MinLevel <= NOTICE {
		l.log(NOTICE, format, v...)
	}
}

func (l *TextLogger) Warn(format string, v ...any) {
	if l.MinLevel <= WARN {
		l.log(WARN, format, v...)
	}
}

func (l *TextLogger) Error(format string, v ...any) {
	l.log(ERROR, format, v...)
}

func (l *TextLogger) Fatal(format string, v ...any) {
	l.log(FATAL, format, v...)
	if l.ExitFn != nil {
		l.ExitFn()
		return
	}
	os.Exit(1)
}

func (l *TextLogger) log(level Level, format string, v ...any) {
	message := fmt.Sprintf(format, v...)
	now := time.Now().Format(DateFormat)
	line := ""

	if l.Colors {
		levelColor := cyan
		messageColor := nocolor

		switch level {
		case DEBUG:
			levelColor = gray
			messageColor = gray
		case WARN:
			levelColor = yellow
		case ERROR:
			levelColor = red
		case FATAL:
			levelColor = red
			messageColor = red
		}

		if l.Prefix != "" {
			line = fmt.Sprintf("\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m \x1b[%sm%s\x1b[0m\n", levelColor, now, level, lightgray, l.Prefix, messageColor, message)
		} else {
			line = fmt.Sprintf("\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m\n", levelColor, now, level, messageColor, message)
		}
	} else {
		if l.Prefix != "" {
			line = fmt.Sprintf("%s %-6s %s %s\n", now, level, l.Prefix, message)
		} else {
			line = fmt.Sprintf("%s %-6s %s\n", now, level, message)
		}
	}

	// Only one line at a time.
	mutex.Lock()
	fmt.Fprint(l.Writer, line)
	mutex.Unlock()
}

// Discard throws away everything logged to it.
var Discard = &TextLogger{
	MinLevel: FATAL + 1,
	Writer:   io.Discard,
}
