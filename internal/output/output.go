// Package output renders chat events and command results on a terminal or
// any other writer. It supports text and JSON formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format represents an output format type.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w      io.Writer
	format Format
}

// New creates a new output Writer.
func New(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// Format returns the configured format.
func (wr *Writer) Format() Format {
	return wr.format
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v any) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFields writes label/value pairs as aligned text, or v as JSON when
// the format is JSON.
func (wr *Writer) WriteFields(v any, fields [][2]string) error {
	if wr.format == FormatJSON {
		return wr.WriteJSON(v)
	}

	width := 0
	for _, f := range fields {
		width = max(width, len(f[0]))
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(wr.w, "%-*s  %s\n", width+1, f[0]+":", f[1]); err != nil {
			return err
		}
	}
	return nil
}
