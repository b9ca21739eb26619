package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxLogLines bounds the log file; older lines are dropped on rotation.
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a level name. Unknown names map to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// File is the storage a LimitedLogger writes to. *os.File satisfies it.
type File interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	Close() error
}

// LimitedLogger is a leveled logger that keeps its file under MaxLogLines.
type LimitedLogger struct {
	mu        sync.Mutex
	file      File
	level     LogLevel
	lineCount int
	maxLines  int
	now       func() time.Time
}

var (
	globalMu     sync.RWMutex
	globalLogger *LimitedLogger
)

// stderrLogger is used until NewLimitedLogger installs a global logger.
var stderrLogger = &LimitedLogger{level: LogLevelInfo, maxLines: 0, now: time.Now}

var noop = func() {}

// NewLimitedLogger creates a logger on file, counts the lines already in it
// and installs it as the package-level logger.
func NewLimitedLogger(file File, level LogLevel) *LimitedLogger {
	ll := &LimitedLogger{
		file:     file,
		level:    level,
		maxLines: MaxLogLines,
		now:      time.Now,
	}
	ll.countExistingLines()

	globalMu.Lock()
	globalLogger = ll
	globalMu.Unlock()
	return ll
}

func current() *LimitedLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return stderrLogger
}

// SetLevel sets the logging level
func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.level = level
}

// Level returns the logging level
func (ll *LimitedLogger) Level() LogLevel {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return ll.level
}

func (ll *LimitedLogger) enabled(level LogLevel) bool {
	return level >= ll.Level()
}

func (ll *LimitedLogger) logf(level LogLevel, format string, v ...any) {
	if !ll.enabled(level) {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s\n", ll.now().Format("2006/01/02 15:04:05.000"), level, fmt.Sprintf(format, v...))
	ll.Write([]byte(msg))
}

func (ll *LimitedLogger) Debug(format string, v ...any) { ll.logf(LogLevelDebug, format, v...) }
func (ll *LimitedLogger) Info(format string, v ...any)  { ll.logf(LogLevelInfo, format, v...) }
func (ll *LimitedLogger) Warn(format string, v ...any)  { ll.logf(LogLevelWarn, format, v...) }
func (ll *LimitedLogger) Error(format string, v ...any) { ll.logf(LogLevelError, format, v...) }

// Trace returns a function that logs the elapsed time of an operation.
// Usage: defer logger.Trace("engine.handleEvent")()
func Trace(name string) func() {
	ll := current()
	if !ll.enabled(LogLevelTrace) {
		return noop
	}
	start := ll.now()
	return func() {
		ll.logf(LogLevelTrace, "%s: %v", name, ll.now().Sub(start))
	}
}

func Debug(format string, v ...any) { current().Debug(format, v...) }
func Info(format string, v ...any)  { current().Info(format, v...) }
func Warn(format string, v ...any)  { current().Warn(format, v...) }
func Error(format string, v ...any) { current().Error(format, v...) }

func (ll *LimitedLogger) countExistingLines() {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if _, err := ll.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	scanner := bufio.NewScanner(ll.file)
	for scanner.Scan() {
		ll.lineCount++
	}
	ll.file.Seek(0, io.SeekEnd)
}

// Write implements io.Writer so the standard log package can be pointed at it.
func (ll *LimitedLogger) Write(p []byte) (int, error) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return os.Stderr.Write(p)
	}

	n, err := ll.file.Write(p)
	if err != nil {
		return n, err
	}
	ll.lineCount += strings.Count(string(p), "\n")
	if ll.maxLines > 0 && ll.lineCount > ll.maxLines {
		ll.rotate()
	}
	return n, nil
}

// rotate keeps the newest maxLines lines. Caller holds mu.
func (ll *LimitedLogger) rotate() {
	if _, err := ll.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	var lines []string
	scanner := bufio.NewScanner(ll.file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) > ll.maxLines {
		lines = lines[len(lines)-ll.maxLines:]
	}

	ll.file.Truncate(0)
	ll.file.Seek(0, io.SeekStart)
	w := bufio.NewWriter(ll.file)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.Flush()
	ll.lineCount = len(lines)
}

// Close closes the underlying file and restores stderr logging.
func (ll *LimitedLogger) Close() error {
	globalMu.Lock()
	if globalLogger == ll {
		globalLogger = nil
	}
	globalMu.Unlock()

	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.file == nil {
		return nil
	}
	return ll.file.Close()
}
