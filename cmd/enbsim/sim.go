package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	mmeio "mme/internal/io"
	"mme/pkg/nas"
	"mme/pkg/s1ap"
)

var (
	errSetupFailed = errors.New("S1 Setup failed")
	errNoReply     = errors.New("no reply (subscriber unknown?)")
)

type enodeb struct {
	conn mmeio.MessageConn
	log  *zap.SugaredLogger

	id   uint16
	name string
	plmn s1ap.PLMN
	tac  uint16

	// timeout bounds the wait for each reply, zero waits forever
	timeout time.Duration
}

func (e *enodeb) exchange(req *s1ap.PDU) (*s1ap.PDU, error) {
	buf, err := s1ap.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Procedure(), err)
	}
	e.log.Debugf("TO MME: (%s %s)\n%x", req.Kind(), req.Procedure(), buf)
	if err := e.conn.WriteMsg(buf, 0); err != nil {
		return nil, err
	}

	var expired func() bool
	if e.timeout > 0 {
		if err := e.conn.SetReadDeadline(time.Now().Add(e.timeout)); err != nil {
			// sockets without deadline support are closed instead
			t := time.AfterFunc(e.timeout, func() { e.conn.Close() })
			expired = func() bool { return !t.Stop() }
		}
	}
	reply, _, err := e.conn.ReadMsg()
	if expired != nil && expired() {
		return nil, fmt.Errorf("%s after %s: %w", req.Procedure(), e.timeout, errNoReply)
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", req.Procedure(), e.timeout, errNoReply)
		}
		return nil, err
	}
	e.log.Debugf("FROM MME:\n%x", reply)
	return s1ap.Decode(reply)
}

// setup runs S1 Setup for this eNodeB.
func (e *enodeb) setup() (*s1ap.S1SetupResponse, error) {
	pdu, err := e.exchange(s1ap.NewPDU(&s1ap.S1SetupRequest{
		GlobalENBID: s1ap.GlobalENBID{PLMN: e.plmn, ENBID: e.id},
		ENBName:     e.name,
		SupportedTAs: []s1ap.SupportedTA{{
			TAC:            e.tac,
			BroadcastPLMNs: []s1ap.PLMN{e.plmn},
		}},
		DefaultPagingDRX: s1ap.PagingDRX128,
	}))
	if err != nil {
		return nil, err
	}
	switch msg := pdu.Value.(type) {
	case *s1ap.S1SetupResponse:
		return msg, nil
	case *s1ap.S1SetupFailure:
		return nil, fmt.Errorf("%w: cause group %d value %d", errSetupFailed, msg.Cause.Group, msg.Cause.Value)
	default:
		return nil, fmt.Errorf("unexpected reply %s %s", pdu.Kind(), pdu.Procedure())
	}
}

// attach sends an Initial UE Message carrying an Attach Request with a PDN
// Connectivity Request and returns the challenge the MME answers with.
func (e *enodeb) attach(enbUEID uint32, imsi string) (*s1ap.DownlinkNASTransport, *nas.AuthenticationRequestMsg, error) {
	digits, err := nas.ParseIMSI(imsi)
	if err != nil {
		return nil, nil, fmt.Errorf("IMSI %q: %w", imsi, err)
	}
	raw, err := nas.PackAttachRequest(&nas.AttachRequestMsg{
		AttachType:          nas.AttachTypeEPS,
		KeySetID:            nas.NASKeySetID{Value: 7},
		MobileIdentity:      nas.MobileIdentity{Type: nas.IdentityIMSI, IMSI: digits},
		UENetworkCapability: []byte{0xe0, 0xe0},
	}, &nas.PDNConnectivityRequestMsg{
		PTI:         1,
		RequestType: 1,
		PDNType:     1,
	})
	if err != nil {
		return nil, nil, err
	}

	pdu, err := e.exchange(s1ap.NewPDU(&s1ap.InitialUEMessage{
		ENBUES1APID:           enbUEID,
		NASPDU:                raw,
		TAI:                   s1ap.TAI{PLMN: e.plmn, TAC: e.tac},
		EUTRANCGI:             s1ap.EUTRANCGI{PLMN: e.plmn, CellID: uint32(e.id) << 8},
		RRCEstablishmentCause: 3,
	}))
	if err != nil {
		return nil, nil, err
	}
	down, ok := pdu.Value.(*s1ap.DownlinkNASTransport)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected reply %s %s", pdu.Kind(), pdu.Procedure())
	}
	auth, err := nas.Codec{}.UnpackAuthenticationRequest(down.NASPDU)
	if err != nil {
		return down, nil, fmt.Errorf("NAS-PDU: %w", err)
	}
	return down, auth, nil
}
