package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the log service does. Register once per process.
type Metrics struct {
	Appends       prometheus.Counter
	AppendedBytes prometheus.Counter
	Reads         prometheus.Counter
	ReadErrors    prometheus.Counter
	Corruptions   prometheus.Counter
	Rotations     prometheus.Counter
	Syncs         prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Appends: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_appends_total",
			Help: "Records appended to the log.",
		}),
		AppendedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_appended_bytes_total",
			Help: "Payload bytes appended to the log.",
		}),
		Reads: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_reads_total",
			Help: "Records read back from the log.",
		}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_read_errors_total",
			Help: "Reads that failed for any reason.",
		}),
		Corruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_corruptions_total",
			Help: "Reads that hit a chunk checksum mismatch.",
		}),
		Rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_rotations_total",
			Help: "Segment rotations triggered by the segment size limit.",
		}),
		Syncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "seglog_syncs_total",
			Help: "Explicit fsync barriers requested by callers.",
		}),
	}
}
