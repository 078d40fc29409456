package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flattener/pkg/errors"
	"flattener/pkg/models"
)

func TestCodec_DecodeSchemaless(t *testing.T) {
	codec := NewCodec(false)
	ts := time.UnixMilli(1700000000123)

	rec, err := codec.Decode(kafka.Message{
		Topic:     "orders",
		Partition: 2,
		Offset:    17,
		Key:       []byte("order-1"),
		Value:     []byte(`{"id":9007199254740993,"attrs":{"b":2,"a":"x"}}`),
		Time:      ts,
		Headers:   []kafka.Header{{Key: "source", Value: []byte("web")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "orders", rec.Topic)
	require.NotNil(t, rec.Partition)
	assert.Equal(t, int32(2), *rec.Partition)
	assert.Equal(t, int64(17), rec.Offset)
	assert.Equal(t, "order-1", rec.Key)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, ts.UnixMilli(), *rec.Timestamp)
	assert.Equal(t, []models.Header{{Key: "source", Value: []byte("web")}}, rec.Headers)

	value := rec.Value.(map[string]interface{})
	assert.Equal(t, json.Number("9007199254740993"), value["id"])
	assert.Equal(t, map[string]interface{}{"b": json.Number("2"), "a": "x"}, value["attrs"])
}

func TestCodec_DecodeTombstone(t *testing.T) {
	rec, err := NewCodec(false).Decode(kafka.Message{Topic: "t", Key: []byte("k")})
	require.NoError(t, err)
	assert.Nil(t, rec.Value)
	assert.Nil(t, rec.Timestamp)
}

func TestCodec_DecodeInvalidJSON(t *testing.T) {
	for _, raw := range []string{`{"a":`, `{"a":1} {"b":2}`, `not json`} {
		_, err := NewCodec(false).Decode(kafka.Message{Topic: "t", Value: []byte(raw)})
		require.Error(t, err, raw)
		assert.Equal(t, "DECODE_ERROR", errors.Code(err))
		assert.True(t, errors.IsFatal(err))
	}
}

func TestCodec_DecodeWithSchemas(t *testing.T) {
	codec := NewCodec(true)

	rec, err := codec.Decode(kafka.Message{
		Topic: "t",
		Key:   []byte(`{"schema":{"type":"string"},"payload":"k1"}`),
		Value: []byte(`{"schema":{"type":"struct","name":"Order"},"payload":{"m":{"x":1}}}`),
	})
	require.NoError(t, err)

	assert.Equal(t, &models.Schema{Type: "string"}, rec.KeySchema)
	assert.Equal(t, "k1", rec.Key)
	assert.Equal(t, &models.Schema{Type: "struct", Name: "Order"}, rec.ValueSchema)
	assert.Equal(t, map[string]interface{}{"m": map[string]interface{}{"x": json.Number("1")}}, rec.Value)
}

func TestCodec_DecodeWithSchemasMissingPayload(t *testing.T) {
	_, err := NewCodec(true).Decode(kafka.Message{Topic: "t", Value: []byte(`{"m":{"x":1}}`)})
	require.Error(t, err)
	assert.Equal(t, "DECODE_ERROR", errors.Code(err))
	assert.Contains(t, err.Error(), "must contain \"schema\" and \"payload\"")
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, schemas := range []bool{false, true} {
		codec := NewCodec(schemas)

		in := kafka.Message{
			Topic:   "in",
			Key:     []byte("key-1"),
			Value:   []byte(`{"big":12345678901234567890,"m":[1,2]}`),
			Time:    time.UnixMilli(1700000000000),
			Headers: []kafka.Header{{Key: "h", Value: []byte("v")}},
		}
		if schemas {
			in.Key = []byte(`{"schema":{"type":"string"},"payload":"key-1"}`)
			in.Value = []byte(`{"schema":{"type":"struct"},"payload":{"big":12345678901234567890,"m":[1,2]}}`)
		}

		rec, err := codec.Decode(in)
		require.NoError(t, err)

		out, err := codec.Encode("out", rec)
		require.NoError(t, err)

		assert.Equal(t, "out", out.Topic)
		assert.Equal(t, in.Time.UnixMilli(), out.Time.UnixMilli())
		assert.Equal(t, in.Headers, out.Headers)
		assert.JSONEq(t, string(in.Value), string(out.Value))
		if schemas {
			assert.JSONEq(t, string(in.Key), string(out.Key))
		} else {
			assert.Equal(t, in.Key, out.Key)
		}
	}
}

func TestCodec_EncodeTombstoneAndStructuredKey(t *testing.T) {
	codec := NewCodec(false)

	msg, err := codec.Encode("t", models.Record{Key: map[string]interface{}{"id": 1}})
	require.NoError(t, err)
	assert.Nil(t, msg.Value)
	assert.JSONEq(t, `{"id":1}`, string(msg.Key))
	assert.False(t, msg.Time.IsZero())
}
