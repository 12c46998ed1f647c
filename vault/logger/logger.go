package logger

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Fatal(...interface{})
	Writer() io.Writer
	SetWriter(io.Writer)
	Prefix(string)
	Silent(bool)
}

type logger struct {
	*log.Logger
	mu     sync.Mutex
	out    io.Writer
	silent bool
}

// NewLogger returns a new Logger instance backed by Logrus.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	l.Formatter = &prefixFormatter{
		TextFormatter: log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		},
	}
	return &logger{Logger: l, out: l.Out}
}

// NewSilentLogger returns a Logger which discards everything. Used by tests
// and by components constructed without a logger.
func NewSilentLogger() Logger {
	l := NewLogger(uint32(log.PanicLevel))
	l.Silent(true)
	return l
}

func (l *logger) Writer() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = writer
	if !l.silent {
		l.Logger.SetOutput(writer)
	}
}

// Prefix sets a string prepended to every message. An empty prefix clears it.
func (l *logger) Prefix(prefix string) {
	l.Logger.Formatter.(*prefixFormatter).setPrefix(prefix)
}

// Silent discards all output while enabled. The previous writer is restored
// when disabled.
func (l *logger) Silent(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enable && !l.silent {
		l.out = l.Logger.Out
		l.Logger.SetOutput(io.Discard)
	} else if !enable && l.silent {
		l.Logger.SetOutput(l.out)
	}
	l.silent = enable
}

type prefixFormatter struct {
	log.TextFormatter
	mu     sync.RWMutex
	prefix string
}

func (f *prefixFormatter) setPrefix(prefix string) {
	f.mu.Lock()
	f.prefix = prefix
	f.mu.Unlock()
}

func (f *prefixFormatter) Format(entry *log.Entry) ([]byte, error) {
	f.mu.RLock()
	prefix := f.prefix
	f.mu.RUnlock()
	if prefix != "" {
		entry.Message = prefix + entry.Message
	}
	return f.TextFormatter.Format(entry)
}
