package s1ap

import (
	"encoding/binary"
	"fmt"
)

// reader walks a buffer and never hands out bytes past its end.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) need(n int, what string) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: %s needs %d bytes, %d left", ErrMalformed, what, n, r.remaining())
	}
	return nil
}

func (r *reader) uint8(what string) (uint8, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) uint16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) uint32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// bytes returns a copy, the caller may keep it after the input is reused.
func (r *reader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.off:r.off+n])
	r.off += n
	return v, nil
}

// sub carves the next n bytes out as an independent reader.
func (r *reader) sub(n int, what string) (*reader, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	s := newReader(r.buf[r.off : r.off+n])
	r.off += n
	return s, nil
}

func (r *reader) done(what string) error {
	if r.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after %s", ErrMalformed, r.remaining(), what)
	}
	return nil
}

// writer appends into a buffer bounded by limit.
type writer struct {
	buf   []byte
	limit int
}

func newWriter(limit int) *writer {
	size := limit
	if size > 512 {
		size = 512
	}
	return &writer{buf: make([]byte, 0, size), limit: limit}
}

func (w *writer) reserve(n int, what string) error {
	if len(w.buf)+n > w.limit {
		return fmt.Errorf("%w: %s needs %d bytes, capacity %d, used %d", ErrOverflow, what, n, w.limit, len(w.buf))
	}
	return nil
}

func (w *writer) uint8(v uint8, what string) error {
	if err := w.reserve(1, what); err != nil {
		return err
	}
	w.buf = append(w.buf, v)
	return nil
}

func (w *writer) uint16(v uint16, what string) error {
	if err := w.reserve(2, what); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return nil
}

func (w *writer) uint32(v uint32, what string) error {
	if err := w.reserve(4, what); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return nil
}

func (w *writer) bytes(v []byte, what string) error {
	if err := w.reserve(len(v), what); err != nil {
		return err
	}
	w.buf = append(w.buf, v...)
	return nil
}

// lengthPrefixed writes a 16 bit length followed by whatever fn writes.
func (w *writer) lengthPrefixed(what string, fn func() error) error {
	at := len(w.buf)
	if err := w.uint16(0, what); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	n := len(w.buf) - at - 2
	if n > 0xffff {
		return fmt.Errorf("%w: %s is %d bytes, length field holds 65535", ErrOverflow, what, n)
	}
	binary.BigEndian.PutUint16(w.buf[at:], uint16(n))
	return nil
}

func (w *writer) len() int {
	return len(w.buf)
}
