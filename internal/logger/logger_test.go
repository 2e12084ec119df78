package logger

import (
	"bytes"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvLogger_Debug(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		expectLog bool
	}{
		{name: "logs when FORGE_DEBUG is set", envValue: "1", expectLog: true},
		{name: "logs when FORGE_DEBUG is any value", envValue: "true", expectLog: true},
		{name: "does not log when FORGE_DEBUG is empty", envValue: "", expectLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log.SetOutput(&buf)
			defer log.SetOutput(os.Stderr)

			t.Setenv(DebugEnv, tt.envValue)

			l := NewEnvLogger("[test]")
			l.Debug("test message %s", "arg")

			if tt.expectLog {
				assert.Contains(t, buf.String(), "[test] test message arg")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestEnvLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := NewEnvLogger("[parse]")
	l.Info("info message %d", 42)
	l.Warn("skipped line")
	l.Error("write failed")

	out := buf.String()
	assert.Contains(t, out, "[parse] info message 42")
	assert.Contains(t, out, "[parse] WARN: skipped line")
	assert.Contains(t, out, "[parse] ERROR: write failed")
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("", &buf)
	l.Warn("no prefix %s", "here")

	// log.LstdFlags puts "YYYY/MM/DD HH:MM:SS " first; an empty prefix
	// adds nothing after it.
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} WARN: no prefix here\n$`, buf.String())
}

func TestNoopLogger(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := Noop()
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	assert.Empty(t, buf.String())
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()

	l.Debug("debug %s", "msg")
	l.Warn("warn %s", "msg")

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, LogMessage{Level: "debug", Message: "debug msg"}, msgs[0])
	assert.Equal(t, LogMessage{Level: "warn", Message: "warn msg"}, msgs[1])

	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))
	assert.True(t, l.Contains("warn", "msg"))
	assert.False(t, l.Contains("debug", "warn"))

	l.Clear()
	assert.Empty(t, l.Messages())
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Info("line %d", j)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, l.Messages(), 400)
}

func TestDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	buf := NewBufferLogger()
	SetDefault(buf)

	assert.Equal(t, buf, Default())
	assert.Equal(t, buf, OrDefault(nil))

	other := Noop()
	assert.Equal(t, other, OrDefault(other))
}
