package formatter

import (
	"encoding/json"
	"io"
)

// JSONLWriter writes one JSON object per line, for alert streams.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter creates a JSONL writer on w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // messages carry paths and quotes verbatim
	return &JSONLWriter{enc: enc}
}

// Write encodes v as a single line.
func (jw *JSONLWriter) Write(v any) error {
	return jw.enc.Encode(v)
}

// WriteJSON writes v as indented JSON with a trailing newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
