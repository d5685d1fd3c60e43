// Database metrics for the hub's persistence layer. The dispatcher polls and
// claims delivery_attempts continuously, so query latency and pool pressure
// here translate directly into delivery lag.
package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for store metrics collection.
type DBMetricsConfig struct {
	Enabled bool
	// SlowQueryThreshold marks queries that count toward hub_db_slow_query_total
	SlowQueryThreshold time.Duration
	// PoolStatsInterval is how often connection pool stats are sampled
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns the defaults used by the composition root.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query and connection pool metrics for the hub store.
type DBMetrics struct {
	poolConnections    *Gauge // hub_db_pool_connections by state
	poolConnectionsMax *Gauge // hub_db_pool_connections_max

	queryTotal     *Counter   // hub_db_query_total by operation
	queryDuration  *Histogram // hub_db_query_duration_seconds
	slowQueryTotal *Counter   // hub_db_slow_query_total by table

	config DBMetricsConfig
	logger *zap.Logger
	sqlDB  *sql.DB

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics builds the instrument set on the given meter. sqlDB feeds the
// pool stats sampler and may be nil when only query metrics are wanted.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = DefaultDBMetricsConfig().SlowQueryThreshold
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = DefaultDBMetricsConfig().PoolStatsInterval
	}

	poolConnections, err := NewGauge(meter, "hub_db_pool_connections",
		"Connections in the store pool by state", "{connection}")
	if err != nil {
		return nil, err
	}
	poolConnectionsMax, err := NewGauge(meter, "hub_db_pool_connections_max",
		"Configured maximum of the store pool", "{connection}")
	if err != nil {
		return nil, err
	}
	queryTotal, err := NewCounter(meter, "hub_db_query_total",
		"Store queries by operation", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "hub_db_query_duration_seconds",
		Description: "Store query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	slowQueryTotal, err := NewCounter(meter, "hub_db_slow_query_total",
		"Store queries over the slow-query threshold, by table", "{query}")
	if err != nil {
		return nil, err
	}

	return &DBMetrics{
		poolConnections:    poolConnections,
		poolConnectionsMax: poolConnectionsMax,
		queryTotal:         queryTotal,
		queryDuration:      queryDuration,
		slowQueryTotal:     slowQueryTotal,
		config:             cfg,
		logger:             logger,
		sqlDB:              sqlDB,
		stopCh:             make(chan struct{}),
	}, nil
}

// StartPoolStatsCollection samples connection pool stats until Stop or the
// context ends. No-op when no sql.DB was supplied.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	if m.sqlDB == nil {
		m.logger.Warn("pool stats collection skipped, no sql.DB available")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("store pool stats collection started",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	// OpenConnections is Idle + InUse; all three are recorded so dashboards
	// can show utilization without arithmetic
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop terminates the pool stats sampler. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records one completed store query.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}

	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, duration, AttrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// ---------------------------------------------------------------------------
// GORM plugin
// ---------------------------------------------------------------------------

// DBMetricsPlugin feeds DBMetrics from gorm callbacks.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin creates the gorm plugin.
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "hub_db_metrics"
}

// Initialize hooks a timer callback before, and a recorder after, every gorm
// operation kind. Row and raw statements classify their operation from the
// SQL text.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	type registerFunc func(string, func(*gorm.DB)) error

	cb := db.Callback()
	hooks := []struct {
		kind      string
		operation string // empty means classify from the SQL text
		before    registerFunc
		after     registerFunc
	}{
		{"create", "INSERT", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", "SELECT", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", "UPDATE", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", "DELETE", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", "", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", "", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		if err := h.before("hub_db_metrics:before_"+h.kind, markQueryStart); err != nil {
			return err
		}
		operation := h.operation
		if err := h.after("hub_db_metrics:after_"+h.kind, func(db *gorm.DB) {
			p.record(db, operation)
		}); err != nil {
			return err
		}
	}
	return nil
}

func markQueryStart(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, dbQueryStartKey, time.Now())
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if start, ok := ctx.Value(dbQueryStartKey).(time.Time); ok {
		duration = time.Since(start)
	}

	if operation == "" {
		operation = classifySQL(db.Statement.SQL.String())
	}
	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration)
}

func classifySQL(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

type dbQueryContextKey string

const dbQueryStartKey dbQueryContextKey = "hub_db_query_start"

// RegisterDBMetrics wires query and pool metrics onto a gorm DB. It returns
// nil metrics when collection is disabled or no meter provider is available;
// callers must treat a nil result as "nothing to stop".
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("store metrics disabled")
		return nil, nil
	}
	if meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("no meter provider, store metrics skipped")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("hub.store"), sqlDB, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		return nil, err
	}

	logger.Info("store metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)
	return metrics, nil
}
