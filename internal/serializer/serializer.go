// Package serializer implements the length-prefixed field framing used by
// internal/transport's TCP transport. Ported from the teacher's
// src/serializer/serializer.go, which frames each field as a
// little-endian uint32 length followed by that many bytes; the gob-encoded
// wire.Message payload is framed as a single such field.
package serializer

import (
	"bufio"
	"encoding/binary"

	"github.com/pkg/errors"
)

// WriteFieldBytes writes the field length, then the field itself.
func WriteFieldBytes(w *bufio.Writer, b []byte) error {
	size := uint32(len(b))
	if err := binary.Write(w, binary.LittleEndian, &size); err != nil {
		return errors.Wrap(err, "writing field length")
	}
	n, err := w.Write(b)
	if err != nil {
		return errors.Wrap(err, "writing field bytes")
	}
	if uint32(n) != size {
		return errors.Errorf("unexpected num bytes written: expected %d, got %d", size, n)
	}
	return w.Flush()
}

// ReadFieldBytes reads a length-prefixed field written by WriteFieldBytes.
func ReadFieldBytes(r *bufio.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, errors.Wrap(err, "reading field length")
	}

	b := make([]byte, size)
	if _, err := readFull(r, b); err != nil {
		return nil, errors.Wrap(err, "reading field bytes")
	}
	return b, nil
}

// readFull reads exactly len(b) bytes, since bufio.Reader.Read may return
// short reads even when more data is on the way.
func readFull(r *bufio.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
