package constants

import "time"

const (
	ServiceName = "flattener-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 5 * time.Second
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	DefaultStageName     = "flattener"
	CacheKeyPrefixStage  = "flattener:stage:"
	StageConfigTableName = "transform_stage_configs"
)

const (
	TransformSourceStatic   = "static"
	TransformSourcePostgres = "postgres"
	TransformSourceRedis    = "redis"
	TransformSourceMongoDB  = "mongodb"
)

// Headers added to records routed to the dead letter topic.
const (
	HeaderDLQReason          = "dlq.reason"
	HeaderDLQErrorCode       = "dlq.error.code"
	HeaderDLQSourceTopic     = "dlq.source.topic"
	HeaderDLQSourcePartition = "dlq.source.partition"
	HeaderDLQSourceOffset    = "dlq.source.offset"
	HeaderDLQTimestamp       = "dlq.timestamp"
)

const (
	OutcomePredicateSkipped = "predicate_skipped"
	OutcomeRejected         = "rejected"
)
