package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWithFieldsAreApplied(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "scheduler"))
	log.Info("tick", Uint32("now", 42), Bool("due", true))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "scheduler", lines[0]["comp"])
	require.Equal(t, float64(42), lines[0]["now"])
	require.Equal(t, true, lines[0]["due"])
	require.Equal(t, "tick", lines[0]["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "shown", lines[0]["message"])
	require.True(t, log.Enabled(LevelError))
	require.False(t, log.Enabled(LevelInfo))
}

func TestLimitedDropsBeyondBurst(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "info").Limited(rate.NewLimiter(rate.Every(time.Hour), 2))
	for i := 0; i < 10; i++ {
		log.Warn("overrun", Int("i", i))
	}
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	require.Equal(t, float64(0), lines[0]["i"])
	require.Equal(t, float64(1), lines[1]["i"])
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	require.True(t, log.IsZero())
	log.Error("nothing happens")
	require.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel(" debug "))
	require.Equal(t, LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestHex8(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, "info").Info("sensor", Hex8("addr", 0x29), Hex8("hi", 0xf0))
	lines := decodeLines(t, &buf)
	require.Equal(t, "0x29", lines[0]["addr"])
	require.Equal(t, "0xf0", lines[0]["hi"])
}

func TestServiceApply(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "p.log")
	svc, log := newService(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, &console)
	defer svc.Close()

	log.Debug("hidden")
	log.Info("to file", String("comp", "app"))
	require.Empty(t, console.String(), "file only")

	f := svc.file
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	require.Same(t, f, svc.file, "level change keeps the file open")
	log.Debug("now shown")

	svc.Apply(Config{Level: "info", Console: true})
	require.Nil(t, svc.file)
	log.Info("to console")
	require.Contains(t, console.String(), "to console")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"message":"to file"`)
	require.Contains(t, string(b), "now shown")
	require.NotContains(t, string(b), "hidden")
	require.NotContains(t, string(b), "to console")
}
