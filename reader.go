package poolbuf

import (
	"errors"
	"io"
)

// Reader drains a byte buffer from its read cursor.
// It implements the [io.Reader] and [io.ByteReader] interface.
//
// Every read claims its bytes by advancing the buffer's read cursor, so any
// number of readers may drain the same buffer concurrently without two of them
// returning the same byte.
type Reader struct {
	b *Buffer[byte]
}

func NewReader(b *Buffer[byte]) *Reader {
	return &Reader{b: b}
}

// Reset points the reader at b.
func (r *Reader) Reset(b *Buffer[byte]) *Reader {
	r.b = b
	return r
}

// Buffer returns the buffer being read.
func (r *Reader) Buffer() *Buffer[byte] {
	return r.b
}

// Read reads up to len(p) readable bytes into p.
// The error is [io.EOF] if the read cursor has reached the write cursor.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.b == nil {
		return 0, io.EOF
	}
	if len(p) == 0 {
		if r.b.Disposed() {
			return 0, ErrDisposed
		}
		return 0, nil
	}
	chunk, err := r.b.Next(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, chunk), nil
}

// ReadByte reads and returns the next readable byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.b == nil {
		return 0, io.EOF
	}
	chunk, err := r.b.Next(1)
	if err != nil {
		return 0, err
	}
	return chunk[0], nil
}

// WriteTo writes readable bytes to w until the buffer is drained.
// It implements the [io.WriterTo] interface.
func (r *Reader) WriteTo(w io.Writer) (n int64, err error) {
	if r.b == nil {
		return 0, nil
	}
	for {
		chunk, err := r.b.Next(32 * KiB)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		m, err := w.Write(chunk)
		n += int64(m)
		if err != nil {
			return n, err
		}
		if m < len(chunk) {
			return n, io.ErrShortWrite
		}
	}
}
