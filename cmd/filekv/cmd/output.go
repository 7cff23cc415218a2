package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ssargent/filekv/pkg/api"
)

// parseValue reads a command-line argument as JSON, falling back to a
// plain string when it is not valid JSON
func parseValue(arg string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return arg
	}
	return api.NormalizeNumbers(v)
}

func parseValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = parseValue(arg)
	}
	return values
}

func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(api.JSONSafe(v))
	if err != nil {
		return fmt.Errorf("failed to render value: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
