package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Collector — метрики сервиса на собственном реестре
// реализует cache.Observer
type Collector struct {
	registry *prometheus.Registry

	cacheRequests      *prometheus.CounterVec
	cacheFetches       *prometheus.CounterVec
	cacheEvictions     prometheus.Counter
	mutations          *prometheus.CounterVec
	rateLimitRejection *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache reads by entity and result (hit, miss, stale).",
		}, []string{"entity", "result"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetches_total",
			Help:      "Fetches issued by the cache by entity and outcome.",
		}, []string{"entity", "result"}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Cache entries evicted after their gc time.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by name and outcome.",
		}, []string{"name", "result"}),
		rateLimitRejection: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejections_total",
			Help:      "Requests rejected by the fixed window limiter.",
		}, []string{"class"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.cacheRequests,
		c.cacheFetches,
		c.cacheEvictions,
		c.mutations,
		c.rateLimitRejection,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler отдаёт метрики в формате prometheus
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) CacheRequest(entity, result string) {
	c.cacheRequests.WithLabelValues(entity, result).Inc()
}

func (c *Collector) CacheFetch(entity string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.cacheFetches.WithLabelValues(entity, result).Inc()
}

func (c *Collector) CacheEvicted(count int) {
	c.cacheEvictions.Add(float64(count))
}

func (c *Collector) MutationFinished(name string, committed bool) {
	result := "committed"
	if !committed {
		result = "rolled_back"
	}
	c.mutations.WithLabelValues(name, result).Inc()
}

// RateLimited учитывает отказ лимитера для класса запросов (phone, order)
func (c *Collector) RateLimited(class string) {
	c.rateLimitRejection.WithLabelValues(class).Inc()
}

// ObserveHTTP учитывает один обработанный запрос
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
