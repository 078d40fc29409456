package broker

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"flattener/pkg/errors"
	"flattener/pkg/models"
)

// Codec converts between Kafka messages and records. Keys and values are
// JSON. With schemas enabled each side is wrapped in a
// {"schema": ..., "payload": ...} envelope and the schema is carried on the
// record untouched.
type Codec struct {
	schemasEnabled bool
}

func NewCodec(schemasEnabled bool) *Codec {
	return &Codec{schemasEnabled: schemasEnabled}
}

// RawBytes is a key or value that is written to Kafka verbatim.
type RawBytes []byte

type envelope struct {
	Schema  *models.Schema  `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Codec) Decode(m kafka.Message) (models.Record, error) {
	keySchema, key, err := c.decodeKey(m.Key)
	if err != nil {
		return models.Record{}, err
	}

	valueSchema, value, err := c.decodePart(m.Value, "value")
	if err != nil {
		return models.Record{}, err
	}

	partition := int32(m.Partition)
	rec := models.Record{
		Topic:       m.Topic,
		Partition:   &partition,
		Offset:      m.Offset,
		KeySchema:   keySchema,
		Key:         key,
		ValueSchema: valueSchema,
		Value:       value,
	}

	if !m.Time.IsZero() {
		ts := m.Time.UnixMilli()
		rec.Timestamp = &ts
	}

	if len(m.Headers) > 0 {
		rec.Headers = make([]models.Header, 0, len(m.Headers))
		for _, h := range m.Headers {
			rec.Headers = append(rec.Headers, models.Header{Key: h.Key, Value: h.Value})
		}
	}

	return rec, nil
}

// decodeKey keeps schemaless keys as their raw string so the key bytes, and
// with them the output partition, survive unchanged.
func (c *Codec) decodeKey(raw []byte) (*models.Schema, interface{}, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}
	if !c.schemasEnabled {
		return nil, string(raw), nil
	}
	return c.decodePart(raw, "key")
}

func (c *Codec) decodePart(raw []byte, part string) (*models.Schema, interface{}, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	if !c.schemasEnabled {
		value, err := unmarshalJSON(raw)
		if err != nil {
			return nil, nil, decodeError(part, err)
		}
		return nil, value, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, decodeError(part, err)
	}
	if env.Payload == nil {
		return nil, nil, errors.ErrDecode.
			WithDetail("message", "JSON "+part+" with schemas enabled must contain \"schema\" and \"payload\" fields").
			WithDetail("part", part)
	}

	value, err := unmarshalJSON(env.Payload)
	if err != nil {
		return nil, nil, decodeError(part, err)
	}
	return env.Schema, value, nil
}

// unmarshalJSON keeps numbers as json.Number so integers survive a round trip.
func unmarshalJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.ErrDecode.WithDetail("message", "trailing data after JSON document")
	}
	return value, nil
}

func decodeError(part string, err error) error {
	return errors.ErrDecode.
		WithDetail("message", "failed to decode record "+part+": "+err.Error()).
		WithDetail("part", part).
		WithCause(err)
}

func (c *Codec) Encode(topic string, rec models.Record) (kafka.Message, error) {
	key, err := c.encodeKey(rec.KeySchema, rec.Key)
	if err != nil {
		return kafka.Message{}, err
	}

	value, err := c.encodePart(rec.ValueSchema, rec.Value)
	if err != nil {
		return kafka.Message{}, err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}
	if rec.Timestamp != nil {
		msg.Time = time.UnixMilli(*rec.Timestamp)
	}

	if len(rec.Headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: h.Key, Value: h.Value})
		}
	}

	return msg, nil
}

func (c *Codec) encodeKey(schema *models.Schema, key interface{}) ([]byte, error) {
	if raw, ok := key.(RawBytes); ok {
		return raw, nil
	}
	if !c.schemasEnabled {
		switch k := key.(type) {
		case nil:
			return nil, nil
		case string:
			return []byte(k), nil
		case []byte:
			return k, nil
		}
	}
	return c.encodePart(schema, key)
}

func (c *Codec) encodePart(schema *models.Schema, value interface{}) ([]byte, error) {
	if raw, ok := value.(RawBytes); ok {
		return raw, nil
	}
	if value == nil && (!c.schemasEnabled || schema == nil) {
		return nil, nil
	}

	if !c.schemasEnabled {
		return json.Marshal(value)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Schema: schema, Payload: payload})
}
