package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 查询缓存命中/未命中
	queryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_total",
			Help: "Query cache lookups by operation and result",
		},
		[]string{"op", "result"}, // result: hit, miss
	)

	// 查询执行计数
	queriesExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queries_executed_total",
			Help: "Queries executed against the backing store",
		},
		[]string{"op", "result"}, // result: ok, error
	)

	// 查询延迟
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Backing store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// 缓存熔断器状态
	cacheBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_breaker_open",
			Help: "Whether the cache circuit breaker is open (1) or closed (0)",
		},
	)

	// 异步任务计数
	jobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Total number of async jobs submitted",
		},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Async jobs processed by terminal status",
		},
		[]string{"result"}, // completed, failed
	)

	// 正在执行的异步任务数
	jobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Number of async jobs currently executing",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(queryCacheTotal)
	prometheus.MustRegister(queriesExecutedTotal)
	prometheus.MustRegister(queryDuration)
	prometheus.MustRegister(cacheBreakerOpen)
	prometheus.MustRegister(jobsSubmittedTotal)
	prometheus.MustRegister(jobsProcessedTotal)
	prometheus.MustRegister(jobsRunning)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)

	// 注册 Go 运行时指标(只注册一次)
	once.Do(func() {
		// 尝试注册 Go 运行时指标,如果已注册则忽略错误
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordCacheLookup 记录缓存查找结果
func RecordCacheLookup(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	queryCacheTotal.WithLabelValues(op, result).Inc()
}

// RecordQueryExecuted 记录存储查询执行
func RecordQueryExecuted(op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	queriesExecutedTotal.WithLabelValues(op, result).Inc()
	queryDuration.WithLabelValues(op).Observe(seconds)
}

// SetCacheBreakerOpen 更新缓存熔断器状态指标
func SetCacheBreakerOpen(open bool) {
	if open {
		cacheBreakerOpen.Set(1)
	} else {
		cacheBreakerOpen.Set(0)
	}
}

// RecordJobSubmitted 记录任务提交
func RecordJobSubmitted() {
	jobsSubmittedTotal.Inc()
}

// RecordJobProcessed 记录任务终态
func RecordJobProcessed(result string) {
	jobsProcessedTotal.WithLabelValues(result).Inc()
}

// IncJobsRunning 任务开始执行
func IncJobsRunning() {
	jobsRunning.Inc()
}

// DecJobsRunning 任务结束执行
func DecJobsRunning() {
	jobsRunning.Dec()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}
