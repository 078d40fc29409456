package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"flattener/pkg/models"
	"flattener/pkg/transform"
)

const maxLineBytes = 16 * 1024 * 1024

// runApply flattens each non-blank input line. A line that fails is reported
// on errOut and skipped; the run fails if any line failed.
func runApply(in io.Reader, out, errOut io.Writer, fieldName string) error {
	flattener := transform.NewFieldValuesFlattener()
	if err := flattener.Configure(map[string]interface{}{transform.FieldNameConfig: fieldName}); err != nil {
		return err
	}
	defer flattener.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	w := bufio.NewWriter(out)

	var lineNo, failed int
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		encoded, err := applyLine(flattener, line)
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "line %d: %v\n", lineNo, err)
			continue
		}
		if _, err := w.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		w.Flush()
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, lineNo)
	}
	return nil
}

func applyLine(flattener *transform.FieldValuesFlattener, line []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	rec, err := flattener.Apply(models.NewRecordBuilder().WithValue(value).Build())
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec.Value)
}

func runDescribe(out io.Writer, def *transform.ConfigDef, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(out, def.String())
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(def.Keys())
}
