package nas

import (
	"encoding/binary"
	"fmt"
)

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) octet(what string) (uint8, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: %s truncated", ErrMalformed, what)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) fixed(n int, what string) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: %s needs %d octets, %d left", ErrMalformed, what, n, r.remaining())
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

func (r *reader) lv(what string) ([]byte, error) {
	n, err := r.octet(what + " length")
	if err != nil {
		return nil, err
	}
	return r.fixed(int(n), what)
}

func (r *reader) lve(what string) ([]byte, error) {
	if r.remaining() < 2 {
		return nil, fmt.Errorf("%w: %s length truncated", ErrMalformed, what)
	}
	n := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return r.fixed(int(n), what)
}

type writer struct {
	buf   []byte
	limit int
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 64), limit: MaxMessageSize}
}

func (w *writer) raw(what string, b ...byte) error {
	if len(w.buf)+len(b) > w.limit {
		return fmt.Errorf("%w: %s does not fit in %d octets", ErrOverflow, what, w.limit)
	}
	w.buf = append(w.buf, b...)
	return nil
}

func (w *writer) lv(v []byte, what string) error {
	if len(v) > 0xff {
		return fmt.Errorf("%w: %s length %d", ErrOverflow, what, len(v))
	}
	if err := w.raw(what, byte(len(v))); err != nil {
		return err
	}
	return w.raw(what, v...)
}

func (w *writer) lve(v []byte, what string) error {
	if len(v) > 0xffff {
		return fmt.Errorf("%w: %s length %d", ErrOverflow, what, len(v))
	}
	if err := w.raw(what, byte(len(v)>>8), byte(len(v))); err != nil {
		return err
	}
	return w.raw(what, v...)
}
