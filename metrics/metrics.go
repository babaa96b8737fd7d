package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ThinkingCallsTotal counts thinking-tier calls by operation (report|scene) and result (ok|error|unavailable).
	ThinkingCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "thinking",
		Name:      "calls_total",
		Help:      "Total number of thinking-tier calls, labeled by operation and result.",
	}, []string{"operation", "result"})

	// ThinkingCallDurationSeconds is the wall time of a single thinking-tier call.
	ThinkingCallDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "threatsense",
		Subsystem: "thinking",
		Name:      "call_duration_seconds",
		Help:      "Time spent in a single thinking-tier call, including preprocessing and parsing.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"operation"})

	// FramesProcessedTotal counts frame verdicts by deciding tier and classification.
	FramesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "orchestrator",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed by the orchestrator, labeled by source and classification.",
	}, []string{"source", "classification"})

	// VisionErrorsTotal counts vision-tier sentinels absorbed as Normal.
	VisionErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "orchestrator",
		Name:      "vision_errors_total",
		Help:      "Total number of vision-tier failures absorbed by the orchestrator, labeled by sentinel.",
	}, []string{"sentinel"})

	// VideosProcessedTotal counts video verdicts.
	VideosProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "video",
		Name:      "processed_total",
		Help:      "Total number of videos aggregated, labeled by source and classification.",
	}, []string{"source", "classification"})

	// VideoFramesSampled is the distribution of sampled frames per video.
	VideoFramesSampled = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "threatsense",
		Subsystem: "video",
		Name:      "frames_sampled",
		Help:      "Number of frames handed to the orchestrator per video.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// AuditLogErrorsTotal counts failed analysis log writes.
	AuditLogErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "audit",
		Name:      "write_errors_total",
		Help:      "Total number of analysis log writes that failed.",
	})

	// EventsPublishedTotal counts verdict events by result (ok|error).
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total number of verdict events published to RabbitMQ, labeled by result.",
	}, []string{"result"})

	// RabbitMQConnected is 1 when the publisher holds an open channel.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threatsense",
		Subsystem: "events",
		Name:      "rabbitmq_connected",
		Help:      "Whether the verdict publisher is connected to RabbitMQ (best-effort).",
	})

	// RabbitMQLastConnectSeconds is a unix timestamp (seconds) of last successful connect.
	RabbitMQLastConnectSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "threatsense",
		Subsystem: "events",
		Name:      "rabbitmq_last_connect_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last successful RabbitMQ connect (best-effort).",
	})

	// RateLimitedTotal counts requests rejected by the per-client limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "threatsense",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected with 429.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ThinkingCallsTotal,
			ThinkingCallDurationSeconds,
			FramesProcessedTotal,
			VisionErrorsTotal,
			VideosProcessedTotal,
			VideoFramesSampled,
			AuditLogErrorsTotal,
			EventsPublishedTotal,
			RabbitMQConnected,
			RabbitMQLastConnectSeconds,
			RateLimitedTotal,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}

// ObserveSince records the elapsed time since start on h
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
