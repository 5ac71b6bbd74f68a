// Package metrics exposes provisioning counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector of the daemon, served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	provisionedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudd",
			Subsystem: "nodes",
			Name:      "provisioned_total",
			Help:      "Total number of instances created by cloud and template",
		},
		[]string{"cloud", "template"},
	)

	capReachedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudd",
			Subsystem: "nodes",
			Name:      "cap_reached_total",
			Help:      "Number of provisioning requests cut short by the instance cap",
		},
		[]string{"cloud"},
	)

	liveInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cloudd",
			Subsystem: "nodes",
			Name:      "live_instances",
			Help:      "Instances active or starting, as last counted",
		},
		[]string{"cloud"},
	)

	launchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudd",
			Subsystem: "launcher",
			Name:      "launches_total",
			Help:      "Total number of node launches by outcome",
		},
		[]string{"cloud", "outcome"},
	)

	launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudd",
			Subsystem: "launcher",
			Name:      "launch_duration_seconds",
			Help:      "Time from launch start to agent attached or abort",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 9), // 5s to ~21min
		},
		[]string{"cloud"},
	)

	terminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudd",
			Subsystem: "nodes",
			Name:      "terminations_total",
			Help:      "Total number of instance terminations by result",
		},
		[]string{"cloud", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		provisionedTotal,
		capReachedTotal,
		liveInstances,
		launchesTotal,
		launchDuration,
		terminationsTotal,
	)
}

func RecordProvisioned(cloud, template string) {
	provisionedTotal.WithLabelValues(cloud, template).Inc()
}

func RecordCapReached(cloud string) {
	capReachedTotal.WithLabelValues(cloud).Inc()
}

func RecordLiveInstances(cloud string, count int) {
	liveInstances.WithLabelValues(cloud).Set(float64(count))
}

func RecordLaunch(cloud, outcome string, seconds float64) {
	launchesTotal.WithLabelValues(cloud, outcome).Inc()
	launchDuration.WithLabelValues(cloud).Observe(seconds)
}

// RecordTermination counts a termination; result is "success", "failure" or "gone".
func RecordTermination(cloud, result string) {
	terminationsTotal.WithLabelValues(cloud, result).Inc()
}
