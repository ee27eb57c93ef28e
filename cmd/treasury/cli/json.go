// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"reflect"
)

// JSONOutput adds --json to a params struct when embedded.
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result as indented JSON to w if --json is set. It
// reports whether it handled the output; on false the caller prints
// text. Nil slices are written as [].
func (j *JSONOutput) EmitJSON(w io.Writer, result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(w, normalizeNilSlice(result))
}

// WriteJSON writes value to w as indented JSON.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
