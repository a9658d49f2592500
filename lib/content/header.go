// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// fileMagic opens every container file.
var fileMagic = [4]byte{'c', 'y', 's', 't'}

// maxEnvelopeSize bounds the header's envelope length field so a
// corrupt or hostile file cannot demand an arbitrary allocation.
const maxEnvelopeSize = 1 << 20

// WriteHeader writes the container header: the magic bytes, the
// envelope length, and the encoded envelope. The encrypted payload
// stream follows immediately after.
func WriteHeader(dst io.Writer, envelope []byte) error {
	if len(envelope) == 0 {
		return fmt.Errorf("empty envelope")
	}
	if len(envelope) > maxEnvelopeSize {
		return fmt.Errorf("envelope is %d bytes, limit %d", len(envelope), maxEnvelopeSize)
	}
	header := make([]byte, 0, len(fileMagic)+4+len(envelope))
	header = append(header, fileMagic[:]...)
	header = binary.BigEndian.AppendUint32(header, uint32(len(envelope)))
	header = append(header, envelope...)
	if _, err := dst.Write(header); err != nil {
		return fmt.Errorf("writing container header: %w", err)
	}
	return nil
}

// ReadHeader reads the container header and returns the encoded
// envelope. The reader is left positioned at the start of the
// encrypted payload stream.
func ReadHeader(src io.Reader) ([]byte, error) {
	var magic [4]byte
	if _, err := io.ReadFull(src, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrCorruptStream, err)
	}
	if !bytes.Equal(magic[:], fileMagic[:]) {
		return nil, fmt.Errorf("%w: not a cyst container", ErrCorruptStream)
	}
	var lengthField [4]byte
	if _, err := io.ReadFull(src, lengthField[:]); err != nil {
		return nil, fmt.Errorf("%w: reading envelope length: %v", ErrCorruptStream, err)
	}
	length := binary.BigEndian.Uint32(lengthField[:])
	if length == 0 || length > maxEnvelopeSize {
		return nil, fmt.Errorf("%w: envelope length %d out of range", ErrCorruptStream, length)
	}
	envelope := make([]byte, length)
	if _, err := io.ReadFull(src, envelope); err != nil {
		return nil, fmt.Errorf("%w: reading envelope: %v", ErrCorruptStream, err)
	}
	return envelope, nil
}
