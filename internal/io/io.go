package io

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"git.cs.nctu.edu.tw/calee/sctp"
)

var EOF error = io.EOF

var errEmptyMessage = errors.New("msg length of buffer is zero")

// PPIDS1AP is the SCTP payload protocol identifier of S1AP.
const PPIDS1AP = 18

// MessageConn carries whole S1AP PDUs over one association.
type MessageConn interface {
	// ReadMsg returns the next PDU and the stream it arrived on.
	ReadMsg() ([]byte, uint16, error)
	WriteMsg(msg []byte, stream uint16) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

func Send(conn net.Conn, msg []byte) (err error) {
	if len(msg) == 0 {
		return errEmptyMessage
	}
	if len(msg) > 0xffff {
		return fmt.Errorf("msg of %d bytes does not fit the length prefix", len(msg))
	}
	buf := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	copy(buf[2:], msg)
	_, err = conn.Write(buf)
	return err
}

func Recv(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 2)

	_, err := io.ReadFull(conn, buf)
	if err != nil {
		return nil, err
	}

	msgLen := binary.BigEndian.Uint16(buf)
	if msgLen < 1 {
		return nil, errEmptyMessage
	}
	buf = make([]byte, msgLen)
	if _, err = io.ReadFull(conn, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// framedConn runs S1AP over a stream socket with a 2 byte length prefix.
// It has a single stream.
type framedConn struct {
	net.Conn
	wmu sync.Mutex
}

func NewFramedConn(c net.Conn) MessageConn {
	return &framedConn{Conn: c}
}

func (c *framedConn) ReadMsg() ([]byte, uint16, error) {
	msg, err := Recv(c.Conn)
	return msg, 0, err
}

func (c *framedConn) WriteMsg(msg []byte, _ uint16) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return Send(c.Conn, msg)
}

// size of the SndRcvInfo header SCTPSndRcvInfoWrappedConn puts in front of
// every message
const sndRcvInfoLen = 32

type sctpConn struct {
	net.Conn
	bufSize int
}

// NewSCTPConn subscribes to data IO events so every read carries its
// SndRcvInfo, then wraps the association.
func NewSCTPConn(c *sctp.SCTPConn, bufSize int) (MessageConn, error) {
	if err := c.SubscribeEvents(sctp.SCTP_EVENT_DATA_IO); err != nil {
		return nil, fmt.Errorf("subscribe SCTP events: %w", err)
	}
	return newSCTPConn(sctp.NewSCTPSndRcvInfoWrappedConn(c), bufSize), nil
}

func newSCTPConn(wrapped net.Conn, bufSize int) *sctpConn {
	return &sctpConn{Conn: wrapped, bufSize: bufSize}
}

func (c *sctpConn) ReadMsg() ([]byte, uint16, error) {
	buf := make([]byte, sndRcvInfoLen+c.bufSize)
	n, err := c.Conn.Read(buf)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return nil, 0, io.EOF
	}
	if n <= sndRcvInfoLen {
		return nil, 0, fmt.Errorf("short SCTP read of %d bytes", n)
	}
	stream := binary.NativeEndian.Uint16(buf[0:2])
	return buf[sndRcvInfoLen:n], stream, nil
}

func (c *sctpConn) WriteMsg(msg []byte, stream uint16) error {
	if len(msg) == 0 {
		return errEmptyMessage
	}
	buf := make([]byte, sndRcvInfoLen+len(msg))
	binary.NativeEndian.PutUint16(buf[0:2], stream)
	// the PPID goes on the wire as stored, so it is kept in network order
	binary.BigEndian.PutUint32(buf[8:12], PPIDS1AP)
	copy(buf[sndRcvInfoLen:], msg)
	_, err := c.Conn.Write(buf)
	return err
}
