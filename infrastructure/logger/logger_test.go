package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew_FileOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Outputs = []string{"file"}
	cfg.OutputFile = filepath.Join(dir, "ladder.log")
	cfg.ErrorFile = filepath.Join(dir, "error.log")

	l, err := New(cfg)
	require.NoError(t, err)

	l = l.ForWallet("test", "w1")
	l.Component("coordinator").Info("Coordinator starting", zap.String("state", "COLD"))
	l.Debug("hidden at info level")
	l.Component("ladder").Info("Level added",
		LadderLevel("L1"),
		Decimal("delta", decimal.RequireFromString("0.00000001")))
	l.LogError(errors.New("venue down"), map[string]interface{}{"asset_pair": "BTCUSD"})
	_ = l.Close()

	lines := readLines(t, cfg.OutputFile)
	require.Len(t, lines, 3)
	assert.Equal(t, "Coordinator starting", lines[0]["msg"])
	assert.Equal(t, "coordinator", lines[0]["component"])
	assert.Equal(t, "COLD", lines[0]["state"])
	assert.Equal(t, "w1", lines[0]["wallet"])
	assert.Equal(t, "test", lines[0]["env"])

	// 档位名不能覆盖日志级别
	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, "L1", lines[1]["ladder_level"])
	assert.Equal(t, "0.00000001", lines[1]["delta"])

	assert.Equal(t, "venue down", lines[2]["error"])
	assert.Equal(t, "BTCUSD", lines[2]["asset_pair"])

	errLines := readLines(t, cfg.ErrorFile)
	require.Len(t, errLines, 1)
	assert.Equal(t, "error_event", errLines[0]["msg"])
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Component("x").Info("nothing")
	l.LogError(errors.New("x"), nil)
	assert.NotNil(t, l.Logger)
}
