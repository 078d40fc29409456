package models

import "time"

type RecordBuilder struct {
	record Record
}

func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{}
}

func (b *RecordBuilder) WithTopic(topic string) *RecordBuilder {
	b.record.Topic = topic
	return b
}

func (b *RecordBuilder) WithPartition(partition int32) *RecordBuilder {
	b.record.Partition = &partition
	return b
}

func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

func (b *RecordBuilder) WithKey(key interface{}) *RecordBuilder {
	b.record.Key = key
	return b
}

func (b *RecordBuilder) WithKeySchema(schema *Schema) *RecordBuilder {
	b.record.KeySchema = schema
	return b
}

func (b *RecordBuilder) WithValue(value interface{}) *RecordBuilder {
	b.record.Value = value
	return b
}

func (b *RecordBuilder) WithValueSchema(schema *Schema) *RecordBuilder {
	b.record.ValueSchema = schema
	return b
}

func (b *RecordBuilder) WithTimestamp(ts time.Time) *RecordBuilder {
	millis := ts.UnixMilli()
	b.record.Timestamp = &millis
	return b
}

func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record = b.record.WithHeader(key, value)
	return b
}

func (b *RecordBuilder) Build() Record {
	return b.record
}
