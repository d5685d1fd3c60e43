package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level), logs
}

func selectAttempts() (string, int64) {
	return "SELECT * FROM delivery_attempts WHERE status = 'PENDING'", 3
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Warn)

	clone := gl.LogMode(gormlogger.Silent)

	require.NotSame(t, gl, clone)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
	assert.Equal(t, gormlogger.Silent, clone.(*GormLogger).logLevel)
}

func TestGormLogger_Levels(t *testing.T) {
	t.Run("info passes at info level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Info)
		gl.Info(context.Background(), "migrated %d tables", 4)
		require.Len(t, logs.All(), 1)
	})

	t.Run("info suppressed at warn level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)
		gl.Info(context.Background(), "migrated %d tables", 4)
		assert.Empty(t, logs.All())
	})

	t.Run("warn and error pass at warn level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)
		gl.Warn(context.Background(), "connection pool %s", "saturated")
		gl.Error(context.Background(), "statement failed: %v", assert.AnError)
		require.Len(t, logs.All(), 2)
	})
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("query error logs at error level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Error)

		gl.Trace(context.Background(), time.Now(), selectAttempts, errors.New("connection reset"))

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "sql error", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Contains(t, entries[0].Context, zap.Int64("rows", 3))
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Error)

		gl.Trace(context.Background(), time.Now(), selectAttempts, gormlogger.ErrRecordNotFound)

		assert.Empty(t, logs.All())
	})

	t.Run("slow query logs at warn level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)

		begin := time.Now().Add(-time.Second)
		gl.Trace(context.Background(), begin, selectAttempts, nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "slow sql", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("normal query logs at debug under info level", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Info)

		gl.Trace(context.Background(), time.Now(), selectAttempts, nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "sql", entries[0].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})

	t.Run("silent level logs nothing", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Silent)

		gl.Trace(context.Background(), time.Now().Add(-time.Second), selectAttempts, assert.AnError)

		assert.Empty(t, logs.All())
	})

	t.Run("request id from context is tagged", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Info)

		ctx := context.WithValue(context.Background(), RequestIDKey, "req-77")
		gl.Trace(ctx, time.Now(), selectAttempts, nil)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Context, zap.String("request_id", "req-77"))
	})
}
