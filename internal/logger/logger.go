package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (lv LogLevel) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel maps LOG_LEVEL values onto LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes one line per entry to the terminal writer and, when a log
// directory is configured, one JSON object per entry to
// <dir>/<service>-<YYYY-MM-DD>.log. The file is reopened when the UTC date
// changes.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colored  bool
	minLevel LogLevel
	service  string

	dir     string
	day     string
	logFile *os.File

	now func() time.Time
}

// NewLogger creates a logger writing coloured lines to stdout and JSON lines
// to a daily file inside dir.
func NewLogger(dir, service string) *Logger {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}
	l := &Logger{
		out:      os.Stdout,
		colored:  true,
		minLevel: DEBUG,
		service:  service,
		dir:      dir,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := l.rotate(l.now()); err != nil {
		log.Fatal("Failed to create log file:", err)
	}
	l.Info("LOGGER", fmt.Sprintf("Logging to %s", l.logFile.Name()))
	return l
}

// New creates a logger without a log file. Used by workers and tests.
func New(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{out: w, minLevel: DEBUG, now: func() time.Time { return time.Now().UTC() }}
}

// SetLevel drops entries below level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// rotate opens the file for now's date if it is not already open. Callers
// hold l.mu, except NewLogger.
func (l *Logger) rotate(now time.Time) error {
	day := now.Format(time.DateOnly)
	if l.dir == "" || day == l.day {
		return nil
	}
	name := filepath.Join(l.dir, fmt.Sprintf("%s-%s.log", l.service, day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if l.logFile != nil {
		l.logFile.Close()
	}
	l.logFile, l.day = f, day
	return nil
}

func (l *Logger) log(level LogLevel, category, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	now := l.now()
	entry := LogEntry{
		Timestamp: now.Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Service:   l.service,
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	fmt.Fprint(l.out, l.terminalLine(entry))

	if err := l.rotate(now); err != nil {
		fmt.Fprintf(l.out, "logger: cannot rotate log file: %v\n", err)
	}
	if l.logFile != nil {
		b, _ := json.Marshal(entry)
		l.logFile.Write(append(b, '\n'))
	}
}

var levelColors = map[string]color.Attribute{
	"DEBUG": color.FgCyan,
	"INFO":  color.FgGreen,
	"WARN":  color.FgYellow,
	"ERROR": color.FgRed,
	"FATAL": color.FgRed,
}

func (l *Logger) terminalLine(entry LogEntry) string {
	clock := entry.Timestamp[11:19]
	where := ""
	if entry.File != "" && entry.Line > 0 {
		where = fmt.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}

	if !l.colored {
		return fmt.Sprintf("%s %-5s [%-10s] %s%s\n", clock, entry.Level, entry.Category, entry.Message, where)
	}

	attr, ok := levelColors[entry.Level]
	if !ok {
		attr = color.FgWhite
	}
	return fmt.Sprintf("%s %s %s %s%s\n",
		color.New(color.FgBlue).Sprint(clock),
		color.New(attr).Sprintf("%-5s", entry.Level),
		color.New(attr, color.Bold).Sprintf("[%-10s]", entry.Category),
		entry.Message,
		color.New(color.FgMagenta).Sprint(where),
	)
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

func (l *Logger) LogOrder(action, orderRef, message string) {
	l.Info("ORDER", fmt.Sprintf("[%s] %s - %s", action, orderRef, message))
}

func (l *Logger) LogPayment(action, orderRef, message string) {
	l.Info("PAYMENT", fmt.Sprintf("[%s] %s - %s", action, orderRef, message))
}

func (l *Logger) LogRefund(action, orderRef, message string) {
	l.Info("REFUND", fmt.Sprintf("[%s] %s - %s", action, orderRef, message))
}

func (l *Logger) LogOutbox(action, messageID, message string) {
	l.Info("OUTBOX", fmt.Sprintf("[%s] %s - %s", action, messageID, message))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

// LogAPI records one served request. 5xx responses are logged as errors.
func (l *Logger) LogAPI(method, path string, status int, took time.Duration) {
	msg := fmt.Sprintf("%s %s - %d (%s)", method, path, status, took.Round(time.Millisecond))
	if status >= 500 {
		l.Error("API", msg)
		return
	}
	l.Info("API", msg)
}

// Escalate records money-at-risk situations that need an operator.
func (l *Logger) Escalate(orderRef, message string) {
	l.Error("ESCALATE", fmt.Sprintf("%s - %s", orderRef, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.mu.Lock()
		l.logFile.Close()
		l.logFile = nil
		l.mu.Unlock()
	}
}
