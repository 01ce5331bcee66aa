// Package metrics exposes Prometheus counters and gauges for the line
// buffer / piper / grep worker core, grounded on the go-ffmpeg-hls-swarm
// repo's metrics.Server pattern (a dedicated /metrics HTTP endpoint,
// registered against a private registry rather than the global default
// one so multiple cores in a single process don't collide).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is this package's private Prometheus registry. cmd/lnavcore
// serves it at -metrics-addr rather than registering globally, so
// embedding lnavcore's packages in another binary never double-registers.
var Registry = prometheus.NewRegistry()

var (
	// LinesScanned counts lines a grep worker has evaluated against its
	// pattern, across all active workers.
	LinesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lnavcore_lines_scanned_total",
		Help: "Total lines evaluated by grep workers against their pattern.",
	})

	// MatchesEmitted counts match records dispatched to sinks.
	MatchesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lnavcore_matches_emitted_total",
		Help: "Total match records dispatched to grep worker sinks.",
	})

	// PiperBytesDrained counts input line bytes a piper job has written
	// to its scratch file; timestamp prefixes and the end-of-input
	// sentinel are not counted.
	PiperBytesDrained = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lnavcore_piper_bytes_drained_total",
		Help: "Total input line bytes piper jobs have written to their scratch files.",
	})

	// ActiveGrepWorkers gauges how many grep workers currently hold a
	// running goroutine.
	ActiveGrepWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lnavcore_active_grep_workers",
		Help: "Number of grep workers currently running.",
	})

	// ActivePiperJobs gauges how many piper jobs are currently draining.
	ActivePiperJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lnavcore_active_piper_jobs",
		Help: "Number of piper jobs currently draining input.",
	})
)

func init() {
	Registry.MustRegister(LinesScanned, MatchesEmitted, PiperBytesDrained, ActiveGrepWorkers, ActivePiperJobs)
}
