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

// DBMetricsConfig holds database metrics configuration.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DefaultDBMetricsConfig returns the default thresholds.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records statement counts, latencies and connection pool
// utilization for the reconciliation database.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolOpen       *Gauge
	poolMax        *Gauge

	config   DBMetricsConfig
	logger   *zap.Logger
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewDBMetrics builds the database instruments on the given meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	var err error
	if m.queryTotal, err = NewCounter(meter,
		"db_query_total", "Statements executed by operation type", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency distribution",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter,
		"db_slow_query_total", "Statements exceeding the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.poolOpen, err = NewGauge(meter,
		"db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolMax, err = NewGauge(meter,
		"db_pool_connections_max", "Configured pool ceiling", "{connection}"); err != nil {
		return nil, err
	}
	return m, nil
}

// SetSQLDB provides the pool handle for stats collection. Must be
// called before StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection samples pool stats on a ticker until Stop
// or context cancellation.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()
	if sqlDB == nil {
		m.logger.Warn("Pool stats collection skipped, sql.DB not set")
		return
	}

	m.wg.Add(1)
	go m.poolStatsLoop(ctx, sqlDB)

	m.logger.Info("Pool stats collection started",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) poolStatsLoop(ctx context.Context, sqlDB *sql.DB) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.PoolStatsInterval)
	defer ticker.Stop()

	for {
		m.recordPoolStats(ctx, sqlDB.Stats())
		select {
		case <-ticker.C:
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *DBMetrics) recordPoolStats(ctx context.Context, stats sql.DBStats) {
	m.poolMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolOpen.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolOpen.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolOpen.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool stats collection. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records one completed statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
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

// gormOperationVerbs maps GORM callback operations to SQL verbs. Row
// and raw statements carry arbitrary SQL, so the verb comes from the
// statement text instead.
var gormOperationVerbs = map[string]string{
	"create": "INSERT",
	"query":  "SELECT",
	"update": "UPDATE",
	"delete": "DELETE",
}

// RegisterDBMetrics builds the instruments, hooks them into the GORM
// connection and returns the DBMetrics for lifecycle management. It
// returns nil without error when metrics are off.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("Database metrics disabled")
		return nil, nil
	}

	metrics, err := NewDBMetrics(meterProvider.Meter("db.client"), cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	metrics.SetSQLDB(sqlDB)

	err = registerTimingCallbacks(db, "db_metrics", func(op string) func(*gorm.DB) {
		verb := gormOperationVerbs[op]
		return func(db *gorm.DB) {
			ctx := db.Statement.Context
			if ctx == nil {
				ctx = context.Background()
			}
			var duration time.Duration
			if startTime, ok := ctx.Value(queryStartTimeKey).(time.Time); ok {
				duration = time.Since(startTime)
			}
			operation := verb
			if operation == "" {
				operation = detectOperationVerb(db.Statement.SQL.String())
			}
			metrics.RecordQuery(ctx, operation, db.Statement.Table, duration)
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Duration("pool_stats_interval", cfg.PoolStatsInterval),
	)
	return metrics, nil
}

func detectOperationVerb(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
