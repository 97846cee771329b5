package prom

import (
	"sync"

	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemWebhook  = "webhook"
	SystemRules    = "rules"
	SystemOutbox   = "outbox"
	SystemSLA      = "sla"
	SystemDelivery = "delivery"
)

const (
	MetricWebhookReceived          = "received_total"
	MetricWebhookLastReceived      = "last_received_timestamp_seconds"
	MetricRuleActions              = "actions_total"
	MetricAutoReplies              = "auto_replies_total"
	MetricOutboxSends              = "sends_total"
	MetricSLABreaches              = "breaches_total"
	MetricDeliveryAttempts         = "attempts_total"
	MetricDeliveryDurationSeconds  = "duration_seconds"
	MetricDeliveryMaintenanceMoves = "maintenance_moves_total"
)

var (
	mu        sync.RWMutex
	enabled   bool
	namespace = "none"
	constLbls prometheus.Labels

	counters      = make(map[string]prometheus.Counter)
	counterVecs   = make(map[string]*prometheus.CounterVec)
	gauges        = make(map[string]prometheus.Gauge)
	histogramVecs = make(map[string]*prometheus.HistogramVec)
)

// Create registers every inbox metric with the default registry. Until it is
// called the Record helpers are no-ops, which is what tests rely on.
func Create(host string, env string, nameSpace string) error {
	mu.Lock()
	defer mu.Unlock()
	constLbls = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	regs := []func() error{
		func() error { return counterVec(SystemWebhook, MetricWebhookReceived, "outcome") },
		func() error { return gauge(SystemWebhook, MetricWebhookLastReceived) },
		func() error { return counterVec(SystemRules, MetricRuleActions, "action", "outcome") },
		func() error { return counterVec(SystemRules, MetricAutoReplies, "outcome") },
		func() error { return counterVec(SystemOutbox, MetricOutboxSends, "outcome") },
		func() error { return counter(SystemSLA, MetricSLABreaches) },
		func() error { return counterVec(SystemDelivery, MetricDeliveryAttempts, "status") },
		func() error { return histogramVec(SystemDelivery, MetricDeliveryDurationSeconds, "provider") },
		func() error { return counterVec(SystemDelivery, MetricDeliveryMaintenanceMoves, "kind") },
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	enabled = true
	return nil
}

func ListenAndServer(addr string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Error("[metrics-server] http listen error", "error", err)
	}
}

func opts(subsystem, name string) prometheus.Opts {
	return prometheus.Opts{Namespace: namespace, Subsystem: subsystem, Name: name, ConstLabels: constLbls}
}

func counter(subsystem, name string) error {
	c := prometheus.NewCounter(prometheus.CounterOpts(opts(subsystem, name)))
	counters[subsystem+name] = c
	return prometheus.Register(c)
}

func counterVec(subsystem, name string, labels ...string) error {
	c := prometheus.NewCounterVec(prometheus.CounterOpts(opts(subsystem, name)), labels)
	counterVecs[subsystem+name] = c
	return prometheus.Register(c)
}

func gauge(subsystem, name string) error {
	g := prometheus.NewGauge(prometheus.GaugeOpts(opts(subsystem, name)))
	gauges[subsystem+name] = g
	return prometheus.Register(g)
}

func histogramVec(subsystem, name string, labels ...string) error {
	o := opts(subsystem, name)
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Subsystem:   o.Subsystem,
		Name:        o.Name,
		ConstLabels: o.ConstLabels,
		Buckets:     prometheus.DefBuckets,
	}, labels)
	histogramVecs[subsystem+name] = h
	return prometheus.Register(h)
}

func AddCounter(subsystem, name string, number float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counterVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func SetGauge(subsystem, name string, value float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := gauges[subsystem+name]; ok {
		v.Set(value)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histogramVecs[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}
