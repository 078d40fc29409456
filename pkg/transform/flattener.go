package transform

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"

	"flattener/pkg/errors"
	"flattener/pkg/models"
)

const (
	// FieldNameConfig names the payload field whose object value is flattened.
	FieldNameConfig = "field.name"

	fieldNameDoc = "The name of the JSON object field to transform into a list."
)

type Outcome string

const (
	OutcomeTransformed  Outcome = "transformed"
	OutcomeNullValue    Outcome = "null_value"
	OutcomeFieldMissing Outcome = "field_missing"
)

// FieldValuesFlattener replaces one top-level payload field holding a JSON
// object with the list of that object's values.
//
// The list is ordered by ascending inner key. Apply never mutates the input
// payload: the result carries a shallow copy of the outer object with only
// the configured field replaced.
type FieldValuesFlattener struct {
	fieldName atomic.Pointer[string]
}

var _ Transformation = (*FieldValuesFlattener)(nil)

func NewFieldValuesFlattener() *FieldValuesFlattener {
	return &FieldValuesFlattener{}
}

func (f *FieldValuesFlattener) Config() *ConfigDef {
	return NewConfigDef().Define(FieldNameConfig, TypeString, ImportanceHigh, fieldNameDoc)
}

// Configure validates props and publishes the new field name. A failed call
// leaves the flattener unconfigured.
func (f *FieldValuesFlattener) Configure(props map[string]interface{}) error {
	parsed, err := f.Config().Parse(props)
	if err != nil {
		f.fieldName.Store(nil)
		return err
	}

	name := parsed[FieldNameConfig].(string)
	if strings.TrimSpace(name) == "" {
		f.fieldName.Store(nil)
		return errors.Configuration(FieldNameConfig+" configuration is required and cannot be empty.").
			WithDetail("option", FieldNameConfig)
	}

	f.fieldName.Store(&name)
	return nil
}

// FieldName returns the configured field name, or "" before a successful Configure.
func (f *FieldValuesFlattener) FieldName() string {
	if name := f.fieldName.Load(); name != nil {
		return *name
	}
	return ""
}

func (f *FieldValuesFlattener) Apply(rec models.Record) (models.Record, error) {
	out, _, err := f.Flatten(rec)
	return out, err
}

// Flatten applies the transform and reports which path the record took.
func (f *FieldValuesFlattener) Flatten(rec models.Record) (models.Record, Outcome, error) {
	namePtr := f.fieldName.Load()
	if namePtr == nil {
		return rec, "", errors.Configuration("transform is not configured")
	}
	fieldName := *namePtr

	if rec.Value == nil {
		return rec, OutcomeNullValue, nil
	}

	payload, ok := asObject(rec.Value)
	if !ok {
		return rec, "", errors.SchemaMismatch("Record value is not a JSON object (map).").
			WithDetail("value_type", fmt.Sprintf("%T", rec.Value))
	}

	fieldValue, present := payload[fieldName]
	if !present || fieldValue == nil {
		return rec, OutcomeFieldMissing, nil
	}

	nested, ok := asObject(fieldValue)
	if !ok {
		return rec, "", errors.SchemaMismatch(fmt.Sprintf("The field '%s' is not a JSON object (map).", fieldName)).
			WithDetail("field", fieldName).
			WithDetail("value_type", fmt.Sprintf("%T", fieldValue))
	}

	updated := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		updated[k] = v
	}
	updated[fieldName] = valuesByKey(nested)

	return rec.NewRecord(
		rec.Topic,
		rec.Partition,
		rec.KeySchema,
		rec.Key,
		rec.ValueSchema,
		updated,
		rec.Timestamp,
	), OutcomeTransformed, nil
}

func (f *FieldValuesFlattener) Close() error {
	return nil
}

// asObject views v as a JSON object. Any Go map keyed by strings qualifies;
// maps of other shapes are copied into map[string]interface{}.
func asObject(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.IsNil() {
		return map[string]interface{}{}, true
	}

	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func valuesByKey(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		values = append(values, m[k])
	}
	return values
}
