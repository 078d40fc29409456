package main

import (
	"bytes"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flattener/pkg/errors"
	"flattener/pkg/transform"
)

func TestRunApply(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"attrs":{"b":2,"a":"one"}}`,
		``,
		`{"id":2}`,
		`null`,
		`{"id":3,"attrs":{"x":12345678901234567890}}`,
	}, "\n")

	var out, errOut bytes.Buffer
	require.NoError(t, runApply(strings.NewReader(input), &out, &errOut, "attrs"))

	assert.Equal(t, strings.Join([]string{
		`{"attrs":["one",2],"id":1}`,
		`{"id":2}`,
		`null`,
		`{"attrs":[12345678901234567890],"id":3}`,
	}, "\n")+"\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestRunApply_ReportsFailuresPerLine(t *testing.T) {
	input := strings.Join([]string{
		`{"attrs":{"a":1}}`,
		`{"attrs":"flat"}`,
		`not json`,
		`[1,2]`,
	}, "\n")

	var out, errOut bytes.Buffer
	err := runApply(strings.NewReader(input), &out, &errOut, "attrs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 4 records failed")

	assert.Equal(t, `{"attrs":[1]}`+"\n", out.String())

	lines := strings.Split(strings.TrimSpace(errOut.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "line 2: ")
	assert.Contains(t, lines[0], "The field 'attrs' is not a JSON object")
	assert.Contains(t, lines[1], "line 3: invalid JSON")
	assert.Contains(t, lines[2], "line 4: ")
	assert.Contains(t, lines[2], "Record value is not a JSON object")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, stderrors.New("broken pipe")
}

func TestRunApply_OutputFailure(t *testing.T) {
	err := runApply(strings.NewReader(`{"attrs":{"a":1}}`), failingWriter{}, &bytes.Buffer{}, "attrs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write output")
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestRunApply_InvalidField(t *testing.T) {
	err := runApply(strings.NewReader(`{}`), &bytes.Buffer{}, &bytes.Buffer{}, " ")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRunDescribe(t *testing.T) {
	def := transform.NewFieldValuesFlattener().Config()

	var text bytes.Buffer
	require.NoError(t, runDescribe(&text, def, false))
	assert.Contains(t, text.String(), transform.FieldNameConfig)

	var js bytes.Buffer
	require.NoError(t, runDescribe(&js, def, true))
	assert.Contains(t, js.String(), `"name": "field.name"`)
	assert.Contains(t, js.String(), `"importance": "HIGH"`)
}
