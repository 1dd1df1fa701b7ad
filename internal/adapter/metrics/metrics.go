// Package metrics defines the Prometheus collectors of the service.
//
// Every constructor registers on an injected Registerer so tests can use a
// private registry and read values back with prometheus/testutil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/batalovmv/stream-alerts-sub001/internal/platform/version"
)

const namespace = "stream_alerts"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// RegisterBuildInfo publishes a gauge that is always 1, with build metadata as labels.
func RegisterBuildInfo(reg prometheus.Registerer, info version.Info) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information (always 1).",
	}, []string{"version", "commit", "build_time", "go_version"})
	g.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)
	reg.MustRegister(g)
}
