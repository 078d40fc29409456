package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"flattener/internal/config"
	"flattener/internal/constants"
	"flattener/internal/logger"
	"flattener/pkg/errors"
	"flattener/pkg/logging"
	"flattener/pkg/metrics"
	"flattener/pkg/models"
	"flattener/pkg/retry"
	"flattener/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	codec       *Codec
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		Async:                  false,
	}
	return &KafkaProducer{
		writer:      w,
		codec:       NewCodec(cfg.SchemasEnabled),
		logger:      log,
		serviceName: constants.ServiceName,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, rec models.Record) error {
	rec.Headers = tracing.InjectTraceContext(ctx, rec.Headers)

	msg, err := p.codec.Encode(topic, rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(msg.Value))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type ConsumerOption func(*KafkaConsumer)

// WithGroupID overrides the configured consumer group.
func WithGroupID(groupID string) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.groupID = groupID
	}
}

// WithCodec replaces the codec derived from the broker config.
func WithCodec(codec *Codec) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.codec = codec
	}
}

// WithoutDLQ drops records that fail processing instead of forwarding them.
func WithoutDLQ() ConsumerOption {
	return func(c *KafkaConsumer) {
		c.dlqDisabled = true
	}
}

// WithDLQProducer sets the producer used for dead letters.
func WithDLQProducer(p Producer) ConsumerOption {
	return func(c *KafkaConsumer) {
		c.dlqProducer = p
	}
}

// WithLatestOffset makes a new consumer group start at the end of the topic.
func WithLatestOffset() ConsumerOption {
	return func(c *KafkaConsumer) {
		c.startOffset = kafka.LastOffset
	}
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	groupID     string
	startOffset int64
	codec       *Codec
	wg          sync.WaitGroup
	mu          sync.Mutex
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	ownsDLQ     bool
	dlqDisabled bool
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger, opts ...ConsumerOption) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		groupID:     cfg.GroupID,
		startOffset: kafka.FirstOffset,
		codec:       NewCodec(cfg.SchemasEnabled),
		logger:      log,
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(consumer)
	}

	if consumer.dlqDisabled {
		consumer.dlqProducer = nil
	} else if consumer.dlqProducer == nil && cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
		consumer.ownsDLQ = true
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume reads topic until ctx is cancelled. Each record is handled with
// retries; records that still fail go to the DLQ. The offset is committed
// once the record is either handled or dead-lettered.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.groupID,
		"service_name", c.serviceName,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: c.startOffset,
	})

	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", topic,
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			c.handleMessage(ctx, reader, m, handler)
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler HandlerFunc) {
	metrics.IncKafkaMessagesRead(c.serviceName, m.Topic)
	metrics.ObserveKafkaMessageSize(c.serviceName, m.Topic, "in", len(m.Value))
	if m.HighWaterMark > 0 {
		metrics.SetKafkaConsumerLag(c.serviceName, m.Topic, m.Partition, m.HighWaterMark-m.Offset-1)
	}

	msgCtx := logging.WithServiceName(ctx, c.serviceName)
	msgCtx = logging.WithRecordPosition(msgCtx, m.Topic, int32(m.Partition), m.Offset)

	rec, err := c.codec.Decode(m)
	if err == nil {
		spanCtx, span := tracing.StartSpanFromRecord(msgCtx, "flattener.process", rec)
		if sc := span.SpanContext(); sc.HasTraceID() {
			spanCtx = logging.WithTraceID(spanCtx, sc.TraceID().String())
			msgCtx = logging.WithTraceID(msgCtx, sc.TraceID().String())
		}
		err = c.processWithRetry(spanCtx, rec, handler)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}

	if err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to process record",
			"error", err,
			"error_code", errors.Code(err),
			"fatal", errors.IsFatal(err),
		)
		c.deadLetter(msgCtx, m, err)
	}

	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to commit message", "error", err)
	}
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.dlqProducer == nil || c.cfg.DLQTopic == "" {
		c.logger.WarnwCtx(ctx, "No DLQ configured, committing message to avoid blocking")
		return
	}

	if err := c.sendToDLQ(ctx, m, cause); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send message to DLQ", "error", err)
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	var err error
	if reader != nil {
		err = reader.Close()
	}
	c.wg.Wait()

	// A producer passed in WithDLQProducer belongs to the caller.
	if c.dlqProducer != nil && c.ownsDLQ {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = 0

	if c.cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.cfg.Retry.MaxAttempts
	}
	if c.cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = c.cfg.Retry.InitialInterval
	}
	if c.cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = c.cfg.Retry.MaxInterval
	}
	if c.cfg.Retry.Multiplier > 0 {
		policy.Multiplier = c.cfg.Retry.Multiplier
	}
	if c.cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = c.cfg.Retry.MaxElapsedTime
	}
	return policy
}

func (c *KafkaConsumer) processWithRetry(ctx context.Context, rec models.Record, handler HandlerFunc) error {
	policy := c.retryPolicy()

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during record processing", "error", err)
			}
		}()
		return handler(ctx, rec)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, rec.Topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying record processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
		)
	})
}

// sendToDLQ forwards the original bytes with the failure described in headers.
func (c *KafkaConsumer) sendToDLQ(ctx context.Context, m kafka.Message, cause error) error {
	reason := "max_retries_exceeded"
	if errors.IsFatal(cause) {
		reason = "fatal_error"
	}

	headers := make([]models.Header, 0, len(m.Headers)+6)
	for _, h := range m.Headers {
		headers = append(headers, models.Header{Key: h.Key, Value: h.Value})
	}
	headers = append(headers,
		models.Header{Key: constants.HeaderDLQReason, Value: []byte(cause.Error())},
		models.Header{Key: constants.HeaderDLQErrorCode, Value: []byte(errors.Code(cause))},
		models.Header{Key: constants.HeaderDLQSourceTopic, Value: []byte(m.Topic)},
		models.Header{Key: constants.HeaderDLQSourcePartition, Value: []byte(strconv.Itoa(m.Partition))},
		models.Header{Key: constants.HeaderDLQSourceOffset, Value: []byte(strconv.FormatInt(m.Offset, 10))},
		models.Header{Key: constants.HeaderDLQTimestamp, Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	)

	rec := models.Record{
		Topic:   m.Topic,
		Key:     RawBytes(m.Key),
		Value:   RawBytes(m.Value),
		Headers: headers,
	}
	if !m.Time.IsZero() {
		ts := m.Time.UnixMilli()
		rec.Timestamp = &ts
	}

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, rec); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, m.Topic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reason,
		"error_code", errors.Code(cause),
	)

	return nil
}
