package server

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"strings"
	"time"

	kitlogrus "github.com/go-kit/kit/log/logrus"
	"github.com/go-kit/kit/metrics"
	discardMetrics "github.com/go-kit/kit/metrics/discard"
	expvarMetrics "github.com/go-kit/kit/metrics/expvar"
	kitinflux "github.com/go-kit/kit/metrics/influx"
	prometheusMetrics "github.com/go-kit/kit/metrics/prometheus"
	influx "github.com/influxdata/influxdb1-client/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type MetricsBuilder interface {
	BuildConnectorMetrics() *ConnectorMetrics
	BuildControllerMetrics() *ControllerMetrics
	// Handler serves the metrics over the API, or is nil when the backend pushes them elsewhere
	Handler() http.Handler
	Start(ctx context.Context) error
}

const (
	MetricsBackendExpvar     = "expvar"
	MetricsBackendPrometheus = "prometheus"
	MetricsBackendInfluxDB   = "influxdb"
	MetricsBackendDiscard    = "discard"
)

type MetricsBackendConfig struct {
	Influxdb struct {
		Interval        time.Duration     `default:"1m"`
		Tags            map[string]string `usage:"any extra tags to be included with all reported metrics"`
		Addr            string
		Username        string
		Password        string
		Database        string
		RetentionPolicy string
	}
}

// ConnectorMetrics are reported by the front end. Errors is always labeled with "type".
type ConnectorMetrics struct {
	Errors              metrics.Counter
	BytesTransmitted    metrics.Counter
	ConnectionsFrontend metrics.Counter
	ConnectionsBackend  metrics.Counter
	ActiveConnections   metrics.Gauge
	RateLimitAvailable  metrics.Gauge
	StatusRequests      metrics.Counter
	WakeRequests        metrics.Counter
}

// ControllerMetrics are reported by the lifecycle controller. Transitions is labeled with "to",
// InstanceCalls with "action" and "result".
type ControllerMetrics struct {
	State         metrics.Gauge
	Transitions   metrics.Counter
	InstanceCalls metrics.Counter
	OnlinePlayers metrics.Gauge
	IdleTicks     metrics.Gauge
	StatusErrors  metrics.Counter
}

// NewMetricsBuilder creates a new MetricsBuilder based on the specified backend.
// If the backend is not recognized, a discard builder is returned.
// config can be nil if the backend is not influxdb.
func NewMetricsBuilder(backend string, config *MetricsBackendConfig) MetricsBuilder {
	switch strings.ToLower(backend) {
	case MetricsBackendExpvar:
		return &expvarMetricsBuilder{}
	case MetricsBackendPrometheus:
		return &prometheusMetricsBuilder{}
	case MetricsBackendInfluxDB:
		return &influxMetricsBuilder{config: config}
	case MetricsBackendDiscard:
		return &discardMetricsBuilder{}
	default:
		logrus.WithField("backend", backend).Warn("Unknown metrics backend, discarding metrics")
		return &discardMetricsBuilder{}
	}
}

type expvarMetricsBuilder struct {
}

func (b expvarMetricsBuilder) Start(ctx context.Context) error {
	// nothing needed
	return nil
}

func (b expvarMetricsBuilder) Handler() http.Handler {
	return expvar.Handler()
}

func (b expvarMetricsBuilder) BuildConnectorMetrics() *ConnectorMetrics {
	return &ConnectorMetrics{
		Errors:              expvarMetrics.NewCounter("errors").With("subsystem", "connector"),
		BytesTransmitted:    expvarMetrics.NewCounter("bytes"),
		ConnectionsFrontend: expvarMetrics.NewCounter("connections_frontend"),
		ConnectionsBackend:  expvarMetrics.NewCounter("connections_backend"),
		ActiveConnections:   expvarMetrics.NewGauge("active_connections"),
		RateLimitAvailable:  expvarMetrics.NewGauge("rate_limit_available"),
		StatusRequests:      expvarMetrics.NewCounter("status_requests"),
		WakeRequests:        expvarMetrics.NewCounter("wake_requests"),
	}
}

func (b expvarMetricsBuilder) BuildControllerMetrics() *ControllerMetrics {
	return &ControllerMetrics{
		State:         expvarMetrics.NewGauge("proxy_state"),
		Transitions:   expvarMetrics.NewCounter("state_transitions"),
		InstanceCalls: expvarMetrics.NewCounter("instance_calls"),
		OnlinePlayers: expvarMetrics.NewGauge("online_players"),
		IdleTicks:     expvarMetrics.NewGauge("idle_ticks"),
		StatusErrors:  expvarMetrics.NewCounter("status_errors"),
	}
}

type discardMetricsBuilder struct {
}

func (b discardMetricsBuilder) Start(ctx context.Context) error {
	// nothing needed
	return nil
}

func (b discardMetricsBuilder) Handler() http.Handler {
	return nil
}

func (b discardMetricsBuilder) BuildConnectorMetrics() *ConnectorMetrics {
	return &ConnectorMetrics{
		Errors:              discardMetrics.NewCounter(),
		BytesTransmitted:    discardMetrics.NewCounter(),
		ConnectionsFrontend: discardMetrics.NewCounter(),
		ConnectionsBackend:  discardMetrics.NewCounter(),
		ActiveConnections:   discardMetrics.NewGauge(),
		RateLimitAvailable:  discardMetrics.NewGauge(),
		StatusRequests:      discardMetrics.NewCounter(),
		WakeRequests:        discardMetrics.NewCounter(),
	}
}

func (b discardMetricsBuilder) BuildControllerMetrics() *ControllerMetrics {
	return &ControllerMetrics{
		State:         discardMetrics.NewGauge(),
		Transitions:   discardMetrics.NewCounter(),
		InstanceCalls: discardMetrics.NewCounter(),
		OnlinePlayers: discardMetrics.NewGauge(),
		IdleTicks:     discardMetrics.NewGauge(),
		StatusErrors:  discardMetrics.NewCounter(),
	}
}

type influxMetricsBuilder struct {
	config  *MetricsBackendConfig
	metrics *kitinflux.Influx
}

func (b *influxMetricsBuilder) Start(ctx context.Context) error {
	influxConfig := &b.config.Influxdb
	if influxConfig.Addr == "" {
		return errors.New("influx addr is required")
	}

	ticker := time.NewTicker(influxConfig.Interval)
	client, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     influxConfig.Addr,
		Username: influxConfig.Username,
		Password: influxConfig.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create influx http client: %w", err)
	}

	go b.influx().WriteLoop(ctx, ticker.C, client)

	logrus.WithField("addr", influxConfig.Addr).
		Debug("reporting metrics to influxdb")

	return nil
}

func (b *influxMetricsBuilder) Handler() http.Handler {
	return nil
}

func (b *influxMetricsBuilder) influx() *kitinflux.Influx {
	if b.metrics == nil {
		influxConfig := &b.config.Influxdb
		b.metrics = kitinflux.New(influxConfig.Tags, influx.BatchPointsConfig{
			Database:        influxConfig.Database,
			RetentionPolicy: influxConfig.RetentionPolicy,
		}, kitlogrus.NewLogger(logrus.StandardLogger()))
	}
	return b.metrics
}

func (b *influxMetricsBuilder) BuildConnectorMetrics() *ConnectorMetrics {
	metrics := b.influx()

	c := metrics.NewCounter("mc_proxy_connections")
	return &ConnectorMetrics{
		Errors:              metrics.NewCounter("mc_proxy_errors"),
		BytesTransmitted:    metrics.NewCounter("mc_proxy_transmitted_bytes"),
		ConnectionsFrontend: c.With("side", "frontend"),
		ConnectionsBackend:  c.With("side", "backend"),
		ActiveConnections:   metrics.NewGauge("mc_proxy_connections_active"),
		RateLimitAvailable:  metrics.NewGauge("mc_proxy_rate_limit_available"),
		StatusRequests:      metrics.NewCounter("mc_proxy_status_requests"),
		WakeRequests:        metrics.NewCounter("mc_proxy_wake_requests"),
	}
}

func (b *influxMetricsBuilder) BuildControllerMetrics() *ControllerMetrics {
	metrics := b.influx()

	return &ControllerMetrics{
		State:         metrics.NewGauge("mc_proxy_state"),
		Transitions:   metrics.NewCounter("mc_proxy_state_transitions"),
		InstanceCalls: metrics.NewCounter("mc_proxy_instance_calls"),
		OnlinePlayers: metrics.NewGauge("mc_proxy_backend_online_players"),
		IdleTicks:     metrics.NewGauge("mc_proxy_idle_ticks"),
		StatusErrors:  metrics.NewCounter("mc_proxy_backend_status_errors"),
	}
}

type prometheusMetricsBuilder struct {
}

func (b prometheusMetricsBuilder) Start(ctx context.Context) error {
	// nothing needed
	return nil
}

func (b prometheusMetricsBuilder) Handler() http.Handler {
	return promhttp.Handler()
}

func (b prometheusMetricsBuilder) BuildConnectorMetrics() *ConnectorMetrics {
	return &ConnectorMetrics{
		Errors: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "errors",
			Help:      "The total number of errors",
		}, []string{"type"})),
		BytesTransmitted: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "bytes",
			Help:      "The total number of bytes transmitted",
		}, nil)),
		ConnectionsFrontend: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mc_proxy",
			Subsystem:   "frontend",
			Name:        "connections",
			Help:        "The total number of connections",
			ConstLabels: prometheus.Labels{"side": "frontend"},
		}, nil)),
		ConnectionsBackend: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "mc_proxy",
			Subsystem:   "backend",
			Name:        "connections",
			Help:        "The total number of backend connections",
			ConstLabels: prometheus.Labels{"side": "backend"},
		}, nil)),
		ActiveConnections: prometheusMetrics.NewGauge(promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mc_proxy",
			Name:      "active_connections",
			Help:      "The number of active spliced connections",
		}, nil)),
		RateLimitAvailable: prometheusMetrics.NewGauge(promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mc_proxy",
			Name:      "rate_limit_available",
			Help:      "The number of available tokens in the rate limit bucket",
		}, nil)),
		StatusRequests: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "status_requests",
			Help:      "The total number of status requests answered without the backend",
		}, nil)),
		WakeRequests: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "wake_requests",
			Help:      "The total number of logins that asked for the backend to be started",
		}, nil)),
	}
}

func (b prometheusMetricsBuilder) BuildControllerMetrics() *ControllerMetrics {
	return &ControllerMetrics{
		State: prometheusMetrics.NewGauge(promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mc_proxy",
			Name:      "state",
			Help:      "Current proxy state: 0 dormant, 1 starting, 2 proxying, 3 stopping",
		}, nil)),
		Transitions: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "state_transitions",
			Help:      "The total number of state transitions",
		}, []string{"to"})),
		InstanceCalls: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Name:      "instance_calls",
			Help:      "The total number of instance start and stop calls",
		}, []string{"action", "result"})),
		OnlinePlayers: prometheusMetrics.NewGauge(promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mc_proxy",
			Subsystem: "backend",
			Name:      "online_players",
			Help:      "Players online at the last usage check",
		}, nil)),
		IdleTicks: prometheusMetrics.NewGauge(promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mc_proxy",
			Name:      "idle_ticks",
			Help:      "Consecutive usage checks without players",
		}, nil)),
		StatusErrors: prometheusMetrics.NewCounter(promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc_proxy",
			Subsystem: "backend",
			Name:      "status_errors",
			Help:      "The total number of failed backend status queries",
		}, nil)),
	}
}
