package main

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// apiMetrics holds the service's Prometheus collectors. A nil *apiMetrics is
// valid and records nothing.
type apiMetrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	loginAttempts      *prometheus.CounterVec
	tourWrites         *prometheus.CounterVec
	imageUploads       *prometheus.CounterVec
	climateReports     *prometheus.CounterVec
	translationLookups *prometheus.CounterVec
	contactMessages    *prometheus.CounterVec
}

func newAPIMetrics(registerer prometheus.Registerer) *apiMetrics {
	factory := promauto.With(registerer)
	return &apiMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ailurowander_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		loginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_login_attempts_total",
				Help: "Agent login attempts by outcome",
			},
			[]string{"outcome"},
		),
		tourWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_tour_writes_total",
				Help: "Tour create, update and delete operations",
			},
			[]string{"op"},
		),
		imageUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_image_uploads_total",
				Help: "Uploaded tour images by slot kind",
			},
			[]string{"kind"},
		),
		climateReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_climate_reports_total",
				Help: "Climate reports served by data source",
			},
			[]string{"source"},
		),
		translationLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_translation_cache_lookups_total",
				Help: "Translation cache lookups by result",
			},
			[]string{"result"},
		),
		contactMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ailurowander_contact_messages_total",
				Help: "Contact form notifications by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *apiMetrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *apiMetrics) loginAttempt(ok bool) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcomeLabel(ok)).Inc()
}

func (m *apiMetrics) tourWrite(op string) {
	if m == nil {
		return
	}
	m.tourWrites.WithLabelValues(op).Inc()
}

func (m *apiMetrics) imageUploaded(kind string) {
	if m == nil {
		return
	}
	m.imageUploads.WithLabelValues(kind).Inc()
}

func (m *apiMetrics) climateReport(source string) {
	if m == nil {
		return
	}
	m.climateReports.WithLabelValues(source).Inc()
}

func (m *apiMetrics) translationLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.translationLookups.WithLabelValues(result).Inc()
}

func (m *apiMetrics) contactMessage(ok bool) {
	if m == nil {
		return
	}
	m.contactMessages.WithLabelValues(outcomeLabel(ok)).Inc()
}
