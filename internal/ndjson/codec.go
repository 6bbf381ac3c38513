// Package ndjson implements newline-delimited JSON encoding, the framing
// used for the on-disk event transcript and the worker push stream.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxLineSize is the maximum NDJSON line size (256 KiB).
const MaxLineSize = 256 * 1024

// Encoder writes NDJSON lines to an output stream.
type Encoder struct {
	writer *bufio.Writer
}

// NewEncoder creates a new NDJSON encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: bufio.NewWriter(w)}
}

// Encode writes a value as a single JSON line and flushes immediately.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}

	if len(data) > MaxLineSize {
		return fmt.Errorf("line size %d exceeds limit %d", len(data), MaxLineSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return nil
}

// Decoder reads NDJSON lines from an input stream.
type Decoder struct {
	scanner *bufio.Scanner
	lineNum int
}

// NewDecoder creates a new NDJSON decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxLineSize)
	scanner.Buffer(buf, MaxLineSize)

	return &Decoder{scanner: scanner}
}

// Decode reads the next line into v, skipping empty lines. Returns io.EOF
// at end of stream.
func (d *Decoder) Decode(v any) error {
	line, err := d.ReadLine()
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(line), v); err != nil {
		return fmt.Errorf("failed to unmarshal line %d: %w", d.lineNum, err)
	}

	return nil
}

// ReadLine reads the next non-empty raw line without parsing it. Callers
// that tolerate malformed frames (the stream reader) parse the raw line
// themselves.
func (d *Decoder) ReadLine() (string, error) {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return "", fmt.Errorf("scanner error at line %d: %w", d.lineNum, err)
			}
			return "", io.EOF
		}

		d.lineNum++
		line := d.scanner.Text()
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}
