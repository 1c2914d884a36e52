package routerpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// stats holds the server metrics. They live in a private registry so that
// embedding processes control exposition.
type stats struct {
	reg *prometheus.Registry

	requests     *prometheus.CounterVec
	requestErrs  *prometheus.CounterVec
	events       prometheus.Counter
	peers        prometheus.Gauge
	droppedPeers prometheus.Counter
}

func newStats() *stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &stats{
		reg: reg,

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routerpc_requests",
			Help: "Total requests handled, per method",
		}, []string{"method"}),
		requestErrs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "routerpc_request_errors",
			Help: "Total requests that returned an error, per method",
		}, []string{"method"}),
		events: f.NewCounter(prometheus.CounterOpts{
			Name: "routerpc_events_sent",
			Help: "Total route state change events pushed to peers",
		}),
		peers: f.NewGauge(prometheus.GaugeOpts{
			Name: "routerpc_peers",
			Help: "Connected peer count",
		}),
		droppedPeers: f.NewCounter(prometheus.CounterOpts{
			Name: "routerpc_dropped_peers",
			Help: "Peers disconnected for not draining their send queue",
		}),
	}
}
