// Package metrics exports the receive-path counters and the session gauge
// in Prometheus format. The receiver keeps its own atomic counters; the
// collector here snapshots them at scrape time instead of double-counting
// through prometheus counter types.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/transport"
)

// Source is where the collector reads its numbers: transport.Receiver in
// production.
type Source interface {
	Stats() transport.Stats
	Sessions() int
}

// Collector implements prometheus.Collector over a Source snapshot.
type Collector struct {
	source Source

	received        *prometheus.Desc
	dropped         *prometheus.Desc
	pings           *prometheus.Desc
	decrypted       *prometheus.Desc
	decryptFailures *prometheus.Desc
	sessions        *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		received: prometheus.NewDesc(
			"udp_audio_packets_received_total",
			"Audio packets accepted and routed to a session.",
			nil, nil),
		dropped: prometheus.NewDesc(
			"udp_audio_packets_dropped_total",
			"Packets dropped: malformed, unroutable, undecryptable or queue overflow.",
			nil, nil),
		pings: prometheus.NewDesc(
			"udp_audio_probes_total",
			"Connectivity probe packets received.",
			nil, nil),
		decrypted: prometheus.NewDesc(
			"udp_audio_packets_decrypted_total",
			"Payloads successfully decrypted.",
			nil, nil),
		decryptFailures: prometheus.NewDesc(
			"udp_audio_decrypt_failures_total",
			"Payloads that failed authentication or decryption.",
			nil, nil),
		sessions: prometheus.NewDesc(
			"udp_audio_registered_sessions",
			"Sessions currently registered for UDP routing.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.dropped
	ch <- c.pings
	ch <- c.decrypted
	ch <- c.decryptFailures
	ch <- c.sessions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(stats.Received))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(c.pings, prometheus.CounterValue, float64(stats.Pings))
	ch <- prometheus.MustNewConstMetric(c.decrypted, prometheus.CounterValue, float64(stats.Decrypted))
	ch <- prometheus.MustNewConstMetric(c.decryptFailures, prometheus.CounterValue, float64(stats.DecryptFailures))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(c.source.Sessions()))
}

// Server exposes the scrape endpoint on its own listener.
type Server struct {
	registry *prometheus.Registry
	httpSrv  *http.Server
	log      *logrus.Entry
}

// NewServer builds a metrics server for the given source. The registry also
// carries the standard Go runtime and process collectors.
func NewServer(address string, port int, path string, source Source) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		registry: registry,
		httpSrv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", address, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logrus.WithField("component", "metrics"),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start serves scrapes until Stop. Listen errors other than a clean close
// are logged, not fatal: losing metrics must not take audio down.
func (s *Server) Start() {
	s.log.WithField("address", s.httpSrv.Addr).Info("metrics endpoint started")
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics endpoint failed")
		}
	}()
}

// Stop closes the listener.
func (s *Server) Stop() error {
	return s.httpSrv.Close()
}
