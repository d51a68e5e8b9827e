package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mme/internal/core"
	"mme/internal/enb"
	"mme/internal/hss"
	mmeio "mme/internal/io"
	"mme/internal/listener"
	"mme/internal/metrics"
	"mme/pkg/nas"
	"mme/pkg/s1ap"
)

var servedPLMN = s1ap.PLMN{MCC: "001", MNC: "01"}

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// startMME runs a complete MME over TCP and returns its address.
func startMME(t *testing.T) (string, *enb.Table) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store, err := hss.NewMemoryStore(hss.Subscriber{
		IMSI: 1010000000001,
		K:    unhex(t, "465b5ce8b199b49faa5f0a2ee238a6bc"),
		OPc:  unhex(t, "cd63cb71954a9f4e48a5994e37a02baf"),
		AMF:  unhex(t, "b9b9"),
		SQN:  0xff9bb4d0b607,
	})
	require.NoError(t, err)
	rand := bytes.NewReader(unhex(t, "23553cbe9637a89d218ae64dae47bf35"))
	gw, err := hss.New(store, servedPLMN, logger, hss.WithRand(rand))
	require.NoError(t, err)

	m := metrics.NewPrometheusService()
	table := enb.NewTable()
	d, err := core.NewDispatcher(core.MME{
		Name:             "mme01",
		PLMN:             servedPLMN,
		GroupID:          1,
		Code:             1,
		RelativeCapacity: 255,
	}, core.Deps{ENBs: table, HSS: gw, NAS: nas.Codec{}, Metrics: m, Logger: logger})
	require.NoError(t, err)

	l, err := listener.ListenTCP("127.0.0.1:0", d, m, logger)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(context.Background())
	}()
	t.Cleanup(func() {
		l.Close()
		<-done
	})
	return l.Addr().String(), table
}

func connect(t *testing.T, addr string, plmn s1ap.PLMN) *enodeb {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn := mmeio.NewFramedConn(c)
	t.Cleanup(func() { conn.Close() })
	return &enodeb{
		conn: conn,
		log:  zaptest.NewLogger(t).Sugar(),
		id:   42,
		name: "enbsim",
		plmn: plmn,
		tac:  1,

		timeout: 2 * time.Second,
	}
}

func TestSetupAndAttach(t *testing.T) {
	addr, table := startMME(t)
	e := connect(t, addr, servedPLMN)

	resp, err := e.setup()
	require.NoError(t, err)
	assert.Equal(t, "mme01", resp.MMEName)
	assert.Equal(t, uint8(255), resp.RelativeMMECapacity)

	s, ok := table.Get(42)
	require.True(t, ok)
	assert.Equal(t, "enbsim", s.Name)

	down, auth, err := e.attach(7, "001010000000001")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), down.MMEUES1APID)
	assert.Equal(t, uint32(7), down.ENBUES1APID)
	assert.Equal(t, unhex(t, "23553cbe9637a89d218ae64dae47bf35"), auth.RAND[:])
	assert.Equal(t, unhex(t, "55f328b43577b9b94a9ffac354dfafb3"), auth.AUTN[:])
}

func TestSetupRejected(t *testing.T) {
	addr, table := startMME(t)
	e := connect(t, addr, s1ap.PLMN{MCC: "208", MNC: "93"})

	_, err := e.setup()
	assert.ErrorIs(t, err, errSetupFailed)
	assert.Zero(t, table.Len())
}

func TestAttachBadIMSI(t *testing.T) {
	addr, _ := startMME(t)
	e := connect(t, addr, servedPLMN)

	_, _, err := e.attach(1, "12ab")
	assert.Error(t, err)
}

func TestAttachUnknownSubscriberTimesOut(t *testing.T) {
	addr, _ := startMME(t)
	e := connect(t, addr, servedPLMN)
	e.timeout = 200 * time.Millisecond

	_, err := e.setup()
	require.NoError(t, err)

	_, _, err = e.attach(1, "001010000000099")
	assert.ErrorIs(t, err, errNoReply)
}
