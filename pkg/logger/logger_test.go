package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil},
		{name: "console output", config: &Config{Level: InfoLevel, Format: JSONFormat, Console: true}},
		{name: "file output", config: &Config{Level: InfoLevel, File: filepath.Join(dir, "gate.log")}},
		{name: "rotate output", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "gate-rotate.log")}}},
		{name: "invalid format", config: &Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.Info("hello")
			_ = l.Sync()
		})
	}
}

// TestSetLevel 测试动态调整级别对子 Logger 同样生效
func TestSetLevel(t *testing.T) {
	l, err := NewWithOptions(WithLevel(InfoLevel), WithFileOutput(filepath.Join(t.TempDir(), "lvl.log")))
	require.NoError(t, err)

	child := l.With(zap.String("component", "test"))
	assert.False(t, child.Zap().Core().Enabled(zapcore.DebugLevel))

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())
	assert.True(t, child.Zap().Core().Enabled(zapcore.DebugLevel))
}

// TestContextFields 测试从 Context 提取分片字段
func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	ctx := ContextWithManagerID(context.Background(), "m-1")
	ctx = ContextWithShardID(ctx, 3)

	l.InfoContext(ctx, "shard connected", ShardTotal(8))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "m-1", fields["manager_id"])
	assert.Equal(t, uint64(3), fields["shard_id"])
	assert.Equal(t, uint64(8), fields["shard_total"])
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

type countingHook struct{ n int }

func (h *countingHook) OnWrite(zapcore.Entry, []zapcore.Field) error {
	h.n++
	return nil
}

// TestHook 测试 Hook 调用
func TestHook(t *testing.T) {
	hook := &countingHook{}
	l, err := NewWithOptions(
		WithFileOutput(filepath.Join(t.TempDir(), "hook.log")),
		WithHook(hook),
	)
	require.NoError(t, err)

	l.Info("one")
	l.Debug("filtered")
	l.Warn("two")
	assert.Equal(t, 2, hook.n)
}

// TestStaticFields 测试 service 与固定字段写入每条日志
func TestStaticFields(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fields.log")
	var levels []zapcore.Level

	l, err := NewWithOptions(
		WithFileOutput(file),
		WithFields(map[string]string{"cluster": "eu-1"}),
		WithFields(map[string]string{"instance": "gw-0"}),
		WithHook(HookFunc(func(e zapcore.Entry, _ []zapcore.Field) error {
			levels = append(levels, e.Level)
			return nil
		})),
	)
	require.NoError(t, err)

	l.Named("gateway").Info("shard connected", ShardID(2))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, DefaultService, entry["service"])
	assert.Equal(t, "eu-1", entry["cluster"])
	assert.Equal(t, "gw-0", entry["instance"])
	assert.Equal(t, "gateway", entry["logger"])
	assert.EqualValues(t, 2, entry["shard_id"])
	assert.Equal(t, []zapcore.Level{zapcore.InfoLevel}, levels)
}
