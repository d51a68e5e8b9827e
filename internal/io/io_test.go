package io

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecv(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		assert.NoError(t, Send(client, []byte{0x00, 0x11, 0x00}))
	}()

	msg, err := Recv(server)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x00}, msg)
}

func TestRecvSplitWrites(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		client.Write([]byte{0x00})
		client.Write([]byte{0x04, 0xde, 0xad})
		client.Write([]byte{0xbe, 0xef})
		client.Close()
	}()

	msg, err := Recv(server)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, msg)

	_, err = Recv(server)
	assert.ErrorIs(t, err, EOF)
}

func TestRecvErrors(t *testing.T) {
	server, client := net.Pipe()
	go func() {
		client.Write([]byte{0x00, 0x00})
		client.Write([]byte{0x00, 0x05, 0x01})
		client.Close()
	}()

	_, err := Recv(server)
	assert.ErrorIs(t, err, errEmptyMessage)

	_, err = Recv(server)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.ErrorIs(t, Send(server, nil), errEmptyMessage)
	assert.Error(t, Send(server, make([]byte, 0x10000)))
}

func TestFramedConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewFramedConn(server)
	defer conn.Close()

	go func() {
		Send(client, []byte{0x01, 0x02})
		reply, err := Recv(client)
		assert.NoError(t, err)
		assert.Equal(t, []byte{0x03}, reply)
	}()

	msg, stream, err := conn.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, msg)
	assert.Zero(t, stream)
	require.NoError(t, conn.WriteMsg([]byte{0x03}, stream))
}

func TestSCTPConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := newSCTPConn(server, 256)
	defer conn.Close()

	go func() {
		in := make([]byte, sndRcvInfoLen+3)
		binary.NativeEndian.PutUint16(in, 5)
		copy(in[sndRcvInfoLen:], []byte{0x00, 0x11, 0x00})
		client.Write(in)

		out := make([]byte, 1024)
		n, err := client.Read(out)
		assert.NoError(t, err)
		assert.Equal(t, sndRcvInfoLen+2, n)
		assert.Equal(t, uint16(5), binary.NativeEndian.Uint16(out))
		assert.Equal(t, []byte{0x00, 0x00, 0x00, PPIDS1AP}, out[8:12])
		assert.Equal(t, []byte{0x20, 0x11}, out[sndRcvInfoLen:n])

		client.Write(make([]byte, 4))
	}()

	msg, stream, err := conn.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), stream)
	assert.Equal(t, []byte{0x00, 0x11, 0x00}, msg)
	require.NoError(t, conn.WriteMsg([]byte{0x20, 0x11}, stream))

	_, _, err = conn.ReadMsg()
	assert.Error(t, err)
	assert.ErrorIs(t, conn.WriteMsg(nil, 0), errEmptyMessage)
}

func TestFramedConnReadDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewFramedConn(server)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := conn.ReadMsg()
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}
