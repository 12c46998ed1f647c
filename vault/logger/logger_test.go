package logger

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	require.NotNil(t, l)
}

func TestLogger_LogMethods(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	var buf bytes.Buffer
	l.SetWriter(&buf)

	l.Debug("test debug")
	l.Info("test info")
	l.Warn("test warn")
	l.Debugf("test %s", "debugf")
	l.Infof("test %s", "infof")
	l.Warnf("test %s", "warnf")
	l.Errorf("test %s", "errorf")

	output := buf.String()
	for _, msg := range []string{"test debug", "test info", "test warn", "test debugf", "test infof", "test warnf", "test errorf"} {
		require.Contains(t, output, msg)
	}
}

// Ensure messages below the configured level are dropped.
func TestLogger_Level(t *testing.T) {
	l := NewLogger(uint32(log.WarnLevel))
	var buf bytes.Buffer
	l.SetWriter(&buf)

	l.Info("hidden")
	l.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestLogger_Prefix(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	var buf bytes.Buffer
	l.SetWriter(&buf)

	l.Prefix("[test] ")
	l.Info("message")
	require.Contains(t, buf.String(), "[test] message")

	l.Prefix("")
	buf.Reset()
	l.Info("no prefix")
	require.False(t, strings.Contains(buf.String(), "[test]"))
}

func TestLogger_Silent(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	var buf bytes.Buffer
	l.SetWriter(&buf)

	l.Silent(true)
	l.Info("should not appear")
	require.Zero(t, buf.Len())

	l.Silent(false)
	l.Info("should appear")
	require.NotZero(t, buf.Len())
	require.Equal(t, &buf, l.Writer())
}

// Ensure a writer set while silent takes effect once output resumes.
func TestLogger_SetWriterWhileSilent(t *testing.T) {
	l := NewLogger(uint32(log.DebugLevel))
	l.Silent(true)
	var buf bytes.Buffer
	l.SetWriter(&buf)
	l.Infof("ignored %d", 1)
	require.Zero(t, buf.Len())

	l.Silent(false)
	l.Errorf("visible %d", 2)
	require.Contains(t, buf.String(), "visible 2")
}

func TestNewSilentLogger(t *testing.T) {
	l := NewSilentLogger()
	l.Warn("dropped")
}
