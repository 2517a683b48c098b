// Package debug provides the process-wide leveled logger
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured log fields
type Fields = logrus.Fields

// Verbose controls whether debug output is enabled
var Verbose bool

var (
	log = logrus.New()

	fileMu  sync.Mutex
	logFile *os.File
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

// SetVerbose switches debug output on or off
func SetVerbose(v bool) {
	Verbose = v
	if v {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// SetLevel sets the level from its name (error, warn, info, debug, trace)
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	Verbose = lvl >= logrus.DebugLevel
	return nil
}

// SetOutput redirects log output
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// OpenLogFile appends log output to path, closing any previous log file
func OpenLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	fileMu.Lock()
	defer fileMu.Unlock()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	log.SetOutput(f)
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	return nil
}

// CloseLogFile restores stderr output
func CloseLogFile() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return
	}
	log.SetOutput(os.Stderr)
	logFile.Close()
	logFile = nil
}

// WithFields returns an entry carrying structured fields
func WithFields(f Fields) *logrus.Entry {
	return log.WithFields(f)
}

// Printf prints debug output if verbose mode is enabled
func Printf(format string, args ...interface{}) {
	log.Debugf(strings.TrimSuffix(format, "\n"), args...)
}

// Println prints debug output if verbose mode is enabled
func Println(args ...interface{}) {
	log.Debugln(args...)
}

// Tracef logs wire level detail
func Tracef(format string, args ...interface{}) {
	log.Tracef(format, args...)
}

// Infof logs at info level
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warnf logs at warn level
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Errorf logs at error level
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}
