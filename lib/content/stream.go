// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cyst-foundation/cyst/lib/factor"
	"github.com/cyst-foundation/cyst/lib/secret"
)

// ErrCorruptStream reports an encrypted payload stream that fails
// authentication: flipped ciphertext, a reordered chunk, or a stream
// truncated before its final chunk.
var ErrCorruptStream = errors.New("corrupt content stream")

const (
	// ChunkSize is the plaintext size of every chunk except the last.
	ChunkSize = 64 * 1024

	// prefixSize is the random per-stream nonce prefix. The remaining
	// four nonce bytes hold the big-endian chunk counter.
	prefixSize = chacha20poly1305.NonceSizeX - 4

	chunkOverhead  = chacha20poly1305.Overhead
	maxChunkCipher = ChunkSize + chunkOverhead
)

// streamDomain is bound into every chunk's associated data, followed
// by one byte marking whether the chunk is the stream's last.
const streamDomain = "cyst.content.v1"

func chunkAAD(final bool) []byte {
	aad := make([]byte, 0, len(streamDomain)+1)
	aad = append(aad, streamDomain...)
	if final {
		return append(aad, 1)
	}
	return append(aad, 0)
}

func chunkNonce(prefix []byte, counter uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[prefixSize:], counter)
	return nonce
}

func newStreamCipher(dek *secret.Buffer) (cipher.AEAD, error) {
	if dek.Len() != factor.KeySize {
		return nil, fmt.Errorf("DEK is %d bytes, want %d", dek.Len(), factor.KeySize)
	}
	aead, err := chacha20poly1305.NewX(dek.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating stream cipher: %w", err)
	}
	return aead, nil
}

// Writer encrypts a payload stream to an underlying writer. Close
// must be called to emit the final chunk; without it the stream is
// truncated and will not decrypt.
type Writer struct {
	dst     io.Writer
	aead    cipher.AEAD
	prefix  []byte
	counter uint32
	buffer  []byte
	closed  bool
}

// NewWriter starts an encrypted stream under the given DEK. It writes
// the random nonce prefix to dst before returning.
func NewWriter(dst io.Writer, dek *secret.Buffer) (*Writer, error) {
	aead, err := newStreamCipher(dek)
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, prefixSize)
	if _, err := io.ReadFull(rand.Reader, prefix); err != nil {
		return nil, fmt.Errorf("generating stream nonce prefix: %w", err)
	}
	if _, err := dst.Write(prefix); err != nil {
		return nil, fmt.Errorf("writing stream nonce prefix: %w", err)
	}
	return &Writer{
		dst:    dst,
		aead:   aead,
		prefix: prefix,
		buffer: make([]byte, 0, ChunkSize),
	}, nil
}

func (w *Writer) Write(data []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed content stream")
	}
	written := 0
	for len(data) > 0 {
		// A full buffer is flushed only once more data arrives, so the
		// stream's last chunk is always still buffered at Close and
		// can carry the final marker.
		if len(w.buffer) == ChunkSize {
			if err := w.flush(false); err != nil {
				return written, err
			}
		}
		n := copy(w.buffer[len(w.buffer):ChunkSize], data)
		w.buffer = w.buffer[:len(w.buffer)+n]
		data = data[n:]
		written += n
	}
	return written, nil
}

// Close seals and writes the final chunk. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.flush(true)
}

func (w *Writer) flush(final bool) error {
	if w.counter == ^uint32(0) {
		return errors.New("content stream chunk counter exhausted")
	}
	nonce := chunkNonce(w.prefix, w.counter)
	sealed := w.aead.Seal(nil, nonce, w.buffer, chunkAAD(final))
	secret.Zero(w.buffer[:cap(w.buffer)])
	w.buffer = w.buffer[:0]
	w.counter++
	if _, err := w.dst.Write(sealed); err != nil {
		return fmt.Errorf("writing content chunk: %w", err)
	}
	return nil
}

// Reader decrypts a payload stream produced by Writer. Any
// authentication failure, including truncation before the final
// chunk, yields ErrCorruptStream.
type Reader struct {
	src     *bufio.Reader
	aead    cipher.AEAD
	prefix  []byte
	counter uint32
	// next holds the raw ciphertext of the upcoming chunk, read ahead
	// so the stream's last chunk is recognized before decryption.
	next      []byte
	nextFinal bool
	plaintext []byte
	done      bool
	failed    error
}

// NewReader opens an encrypted stream under the given DEK. It reads
// the nonce prefix and the first chunk from src before returning.
func NewReader(src io.Reader, dek *secret.Buffer) (*Reader, error) {
	aead, err := newStreamCipher(dek)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewReader(src)
	prefix := make([]byte, prefixSize)
	if _, err := io.ReadFull(buffered, prefix); err != nil {
		return nil, fmt.Errorf("%w: reading stream nonce prefix: %v", ErrCorruptStream, err)
	}
	r := &Reader{src: buffered, aead: aead, prefix: prefix}
	if err := r.fetch(); err != nil {
		return nil, err
	}
	return r, nil
}

// fetch reads the next raw chunk into r.next and records whether the
// stream ends after it.
func (r *Reader) fetch() error {
	chunk := make([]byte, maxChunkCipher)
	n, err := io.ReadFull(r.src, chunk)
	switch {
	case err == nil:
		r.next = chunk
		_, err := r.src.Peek(1)
		r.nextFinal = err == io.EOF
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: reading content stream: %v", ErrCorruptStream, err)
		}
		return nil
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		if n < chunkOverhead {
			return fmt.Errorf("%w: truncated content stream", ErrCorruptStream)
		}
		r.next, r.nextFinal = chunk[:n], true
		return nil
	default:
		return fmt.Errorf("%w: reading content stream: %v", ErrCorruptStream, err)
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.failed != nil {
		return 0, r.failed
	}
	for len(r.plaintext) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if err := r.open(); err != nil {
			r.failed = err
			return 0, err
		}
	}
	n := copy(p, r.plaintext)
	secret.Zero(r.plaintext[:n])
	r.plaintext = r.plaintext[n:]
	return n, nil
}

// open decrypts the buffered chunk and fetches its successor.
func (r *Reader) open() error {
	final := r.nextFinal
	nonce := chunkNonce(r.prefix, r.counter)
	plaintext, err := r.aead.Open(nil, nonce, r.next, chunkAAD(final))
	if err != nil {
		return fmt.Errorf("%w: chunk %d failed authentication", ErrCorruptStream, r.counter)
	}
	r.counter++
	r.plaintext = plaintext
	r.next = nil
	if final {
		r.done = true
		return nil
	}
	if r.counter == 0 {
		return fmt.Errorf("%w: chunk counter wrapped", ErrCorruptStream)
	}
	return r.fetch()
}
