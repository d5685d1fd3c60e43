// Query tracing for the hub store. otelgorm emits the base spans; the
// enricher tags them with what delivery debugging actually needs: rows
// touched by a claim, the table involved, and slow-query events.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for store query tracing.
type DBTracingConfig struct {
	Enabled bool
	// LogFullSQL includes statement values in spans; keep off outside dev,
	// outbound endpoint secrets pass through subscription rows
	LogFullSQL bool
	// SlowQueryThreshold marks spans whose query ran longer than this
	SlowQueryThreshold time.Duration
}

// DefaultDBTracingConfig returns the defaults used by the composition root.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:            false,
		LogFullSQL:         false,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// RegisterDBTracing wires otelgorm onto a gorm DB together with the span
// enricher callbacks. No-op when tracing is disabled.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("store tracing disabled")
		return nil
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = DefaultDBTracingConfig().SlowQueryThreshold
	}

	opts := []otelgorm.Option{otelgorm.WithDBName("hub")}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	enricher := &spanEnricher{threshold: cfg.SlowQueryThreshold}
	if err := enricher.register(db); err != nil {
		return err
	}

	logger.Info("store tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return nil
}

// spanEnricher adds hub attributes to the spans otelgorm opens around each
// gorm operation.
type spanEnricher struct {
	threshold time.Duration
}

func (e *spanEnricher) register(db *gorm.DB) error {
	type registerFunc func(string, func(*gorm.DB)) error

	cb := db.Callback()
	hooks := []struct {
		kind   string
		before registerFunc
		after  registerFunc
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		if err := h.before("hub_db_tracing:before_"+h.kind, e.markStart); err != nil {
			return err
		}
		if err := h.after("hub_db_tracing:after_"+h.kind, e.enrich); err != nil {
			return err
		}
	}
	return nil
}

func (e *spanEnricher) markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, dbTraceStartKey, time.Now())
	}
}

// enrich runs after the gorm operation, inside the span otelgorm opened.
func (e *spanEnricher) enrich(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	// RowsAffected distinguishes an empty claim batch from a failed one
	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// ErrRecordNotFound is an expected lookup miss, not a store failure
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(dbTraceStartKey).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > e.threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
			span.AddEvent("slow_query", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", e.threshold.Milliseconds()),
			))
		}
	}
}

type dbTraceContextKey string

const dbTraceStartKey dbTraceContextKey = "hub_db_trace_start"
