package models

// Record is one unit of data flowing through a pipeline stage: routing
// metadata plus a key and a value payload. A record is treated as an
// immutable value; transforms derive new records with NewRecord or WithValue.
type Record struct {
	Topic       string      `json:"topic"`
	Partition   *int32      `json:"partition,omitempty"`
	Offset      int64       `json:"offset,omitempty"`
	KeySchema   *Schema     `json:"key_schema,omitempty"`
	Key         interface{} `json:"key,omitempty"`
	ValueSchema *Schema     `json:"value_schema,omitempty"`
	Value       interface{} `json:"value"`
	Timestamp   *int64      `json:"timestamp,omitempty"` // unix milliseconds
	Headers     []Header    `json:"headers,omitempty"`
}

type Header struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Schema is an opaque schema reference carried alongside a key or value.
// The flattener never inspects it.
type Schema struct {
	Type     string                 `json:"type"`
	Name     string                 `json:"name,omitempty"`
	Version  int                    `json:"version,omitempty"`
	Optional bool                   `json:"optional,omitempty"`
	Fields   []interface{}          `json:"fields,omitempty"`
	Params   map[string]interface{} `json:"parameters,omitempty"`
}

// NewRecord builds a record that shares the offset and headers of r and takes
// every other attribute from the arguments.
func (r Record) NewRecord(topic string, partition *int32, keySchema *Schema, key interface{}, valueSchema *Schema, value interface{}, timestamp *int64) Record {
	return Record{
		Topic:       topic,
		Partition:   partition,
		Offset:      r.Offset,
		KeySchema:   keySchema,
		Key:         key,
		ValueSchema: valueSchema,
		Value:       value,
		Timestamp:   timestamp,
		Headers:     r.Headers,
	}
}

// WithValue returns a copy of r carrying value.
func (r Record) WithValue(value interface{}) Record {
	return r.NewRecord(r.Topic, r.Partition, r.KeySchema, r.Key, r.ValueSchema, value, r.Timestamp)
}

// Header returns the last header named key.
func (r Record) Header(key string) ([]byte, bool) {
	for i := len(r.Headers) - 1; i >= 0; i-- {
		if r.Headers[i].Key == key {
			return r.Headers[i].Value, true
		}
	}
	return nil, false
}

// WithHeader returns a copy of r with key set to value, replacing an existing header of that name.
func (r Record) WithHeader(key string, value []byte) Record {
	headers := make([]Header, 0, len(r.Headers)+1)
	for _, h := range r.Headers {
		if h.Key != key {
			headers = append(headers, h)
		}
	}
	headers = append(headers, Header{Key: key, Value: value})
	r.Headers = headers
	return r
}

// PayloadField reads a top-level field when the value is a JSON object.
func (r Record) PayloadField(name string) (interface{}, bool) {
	payload, ok := r.Value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	value, ok := payload[name]
	return value, ok
}
