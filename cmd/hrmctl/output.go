package main

import (
	"encoding/json"
	"io"
)

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
