package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

type LogLevel int

const (
	LogLevelError   LogLevel = 0
	LogLevelWarning LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelDebug   LogLevel = 3
)

var logLevel = LogLevelError

var prefixes = map[LogLevel]string{
	LogLevelError:   color.New(color.FgHiRed).Sprint("[ERROR]"),
	LogLevelWarning: color.New(color.FgHiYellow).Sprint("[WARN]"),
	LogLevelInfo:    color.New(color.FgHiCyan).Sprint("[INFO]"),
	LogLevelDebug:   color.New(color.Faint).Sprint("[DEBUG]"),
}

func SetLogLevel(newLevel int) {
	logLevel = LogLevel(newLevel)
}

// Level returns the current log level.
func Level() LogLevel {
	return logLevel
}

// SetLogFile sends log output to both stdout and logFile.  Colors are
// turned off since they'd end up as escape codes in the file.
func SetLogFile(logFile io.Writer) {
	color.NoColor = true
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	logOutput := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(logOutput)
}

func getPrefix(level LogLevel) string {
	if color.NoColor {
		return fmt.Sprintf("[%s]", levelName(level))
	}
	return prefixes[level]
}

func levelName(level LogLevel) string {
	switch level {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarning:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func logf(level LogLevel, format string, args ...interface{}) {
	if logLevel >= level {
		log.Printf(fmt.Sprintf("%s %s", getPrefix(level), format), args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

func Debugf(format string, args ...interface{}) { logf(LogLevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { logf(LogLevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { logf(LogLevelWarning, format, args...) }
func Errorf(format string, args ...interface{}) { logf(LogLevelError, format, args...) }

// SetupTestLogs turns on everything, for go test -v.
func SetupTestLogs() {
	logLevel = LogLevelDebug
}
