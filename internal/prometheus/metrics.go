package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	messageDurationBucketStart  = 0.005
	messageDurationBucketFactor = 2.0
	messageDurationBucketCount  = 14
)

const (
	sweepDurationBucketStart  = 0.05
	sweepDurationBucketFactor = 2
	sweepDurationBucketCount  = 12
)

const (
	kafkaLatencyBucketStart  = 1.0
	kafkaLatencyBucketFactor = 2.5
	kafkaLatencyBucketCount  = 15
)

var ProcessMessageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "process_message_duration_seconds",
		Help: "Time taken to process a Kafka message",
		Buckets: prometheus.ExponentialBuckets(
			messageDurationBucketStart,
			messageDurationBucketFactor,
			messageDurationBucketCount,
		),
	},
	[]string{"topic"},
)

var KafkaMessageLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "kafka_message_latency_seconds",
		Help: "Time taken from message production to consumption",
		Buckets: prometheus.ExponentialBuckets(
			kafkaLatencyBucketStart,
			kafkaLatencyBucketFactor,
			kafkaLatencyBucketCount,
		),
	},
	[]string{"topic"},
)

var InteractionsRecorded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interactions_recorded_total",
		Help: "Call interactions appended to the interaction log",
	},
	[]string{"action"},
)

var AbandonmentSweepDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "abandonment_sweep_duration_seconds",
		Help: "Time taken by one abandonment sweep",
		Buckets: prometheus.ExponentialBuckets(
			sweepDurationBucketStart,
			sweepDurationBucketFactor,
			sweepDurationBucketCount,
		),
	},
)

var AbandonedInteractionsFlagged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "abandoned_interactions_flagged_total",
		Help: "Abandoned interactions appended by the sweeper",
	},
)

var AbandonmentSweepRowFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "abandonment_sweep_row_failures_total",
		Help: "Sweep candidates that were skipped as malformed or failed to insert",
	},
	[]string{"outcome"},
)

var GradesScored = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "grades_scored_total",
		Help: "Grades finalized by the scoring engine",
	},
	[]string{"band"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "minio_operation_duration_seconds",
		Help:    "Time taken by MinIO operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Time taken to serve API requests",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

var DeadLetterOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dead_letter_outcomes_total",
		Help: "Dead-lettered event messages by reprocessing outcome",
	},
	[]string{"topic", "outcome"},
)

var KafkaMessagesPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_messages_published_total",
		Help: "Messages sent by the Kafka producer",
	},
	[]string{"topic", "outcome"},
)

func init() {
	prometheus.MustRegister(ProcessMessageDuration)
	prometheus.MustRegister(KafkaMessageLatency)
	prometheus.MustRegister(InteractionsRecorded)
	prometheus.MustRegister(AbandonmentSweepDuration)
	prometheus.MustRegister(AbandonedInteractionsFlagged)
	prometheus.MustRegister(AbandonmentSweepRowFailures)
	prometheus.MustRegister(GradesScored)
	prometheus.MustRegister(MinioOperationDuration)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(DeadLetterOutcomes)
	prometheus.MustRegister(KafkaMessagesPublished)
}
