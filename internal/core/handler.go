package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mme/internal/enb"
	"mme/internal/hss"
	"mme/internal/metrics"
	"mme/pkg/nas"
	"mme/pkg/s1ap"
	"mme/pkg/state"
	"mme/pkg/ue"
)

var (
	ErrUnknownSubscriber = errors.New("unknown subscriber")
	ErrUEIDExhausted     = errors.New("MME UE S1AP ID space exhausted")
	ErrUnexpectedMessage = errors.New("unexpected S1AP message")

	errDecode = errors.New("cannot decode message")
	errEncode = errors.New("cannot encode message")
)

// NASCodec is the part of the NAS layer needed before authentication.
type NASCodec interface {
	UnpackInitial(raw []byte) (*nas.AttachRequestMsg, *nas.PDNConnectivityRequestMsg, error)
	PackAuthenticationRequest(m *nas.AuthenticationRequestMsg) ([]byte, error)
}

type Deps struct {
	ENBs    *enb.Table
	HSS     hss.Gateway
	NAS     NASCodec
	Metrics metrics.InstrumentS1AP
	Logger  *zap.Logger
	// MaxPDUSize bounds encoded replies, s1ap.DefaultMaxPDUSize when zero.
	MaxPDUSize int
}

// Dispatcher runs S1 Setup and the start of attach for every association.
// It is safe for concurrent use.
type Dispatcher struct {
	mme     MME
	enbs    *enb.Table
	hss     hss.Gateway
	nas     NASCodec
	metrics metrics.InstrumentS1AP
	log     *zap.SugaredLogger
	maxPDU  int

	lastUEID atomic.Uint32
}

func NewDispatcher(mme MME, deps Deps) (*Dispatcher, error) {
	if err := mme.validate(); err != nil {
		return nil, err
	}
	if deps.ENBs == nil || deps.HSS == nil || deps.NAS == nil || deps.Metrics == nil || deps.Logger == nil {
		return nil, errors.New("dispatcher dependencies incomplete")
	}
	maxPDU := deps.MaxPDUSize
	if maxPDU == 0 {
		maxPDU = s1ap.DefaultMaxPDUSize
	}
	// an accepted eNB must always get its response
	if _, err := s1ap.EncodeWithLimit(s1ap.NewPDU(mme.setupResponse()), maxPDU); err != nil {
		return nil, fmt.Errorf("S1 Setup Response: %w", err)
	}
	return &Dispatcher{
		mme:     mme,
		enbs:    deps.ENBs,
		hss:     deps.HSS,
		nas:     deps.NAS,
		metrics: deps.Metrics,
		log:     deps.Logger.Sugar(),
		maxPDU:  maxPDU,
	}, nil
}

// HandleS1AP decodes one PDU, runs the matching procedure and returns the
// encoded reply. A nil reply with a nil error means nothing is sent.
func (d *Dispatcher) HandleS1AP(ctx context.Context, assoc *state.Association, raw []byte) ([]byte, error) {
	log := d.log.With("assoc", assoc.ID.String())

	pdu, err := s1ap.Decode(raw)
	if err != nil {
		in := metrics.NewMessage("unknown", metrics.DirIncoming)
		in.Finish(metrics.ResultMalformed)
		d.metrics.SaveMessages(in)
		log.Warnf("dropping %d byte PDU: %v", len(raw), err)
		return nil, fmt.Errorf("%w: %w", errDecode, err)
	}

	in := metrics.NewMessage(pdu.Procedure().String(), metrics.DirIncoming)
	reply, err := d.Dispatch(ctx, assoc, pdu)
	switch {
	case errors.Is(err, ErrUnknownSubscriber):
		in.Finish(metrics.ResultDropped)
	case err != nil:
		in.Finish(metrics.ResultFailed)
	case reply != nil && reply.Kind() == s1ap.UnsuccessfulOutcome:
		in.Finish(metrics.ResultRejected)
	default:
		in.Finish(metrics.ResultOK)
	}
	d.metrics.SaveMessages(in)
	if err != nil {
		log.Errorf("%s %s: %v", pdu.Kind(), pdu.Procedure(), err)
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}

	out := metrics.NewMessage(reply.Procedure().String(), metrics.DirOutgoing)
	buf, err := s1ap.EncodeWithLimit(reply, d.maxPDU)
	if err != nil {
		out.Finish(metrics.ResultFailed)
		d.metrics.SaveMessages(out)
		log.Errorf("%s %s: %v", reply.Kind(), reply.Procedure(), err)
		return nil, fmt.Errorf("%w: %w", errEncode, err)
	}
	out.Finish(metrics.ResultOK)
	d.metrics.SaveMessages(out)
	return buf, nil
}

// Dispatch routes a decoded PDU to its procedure. The returned PDU is the
// reply, nil when none is due.
func (d *Dispatcher) Dispatch(ctx context.Context, assoc *state.Association, pdu *s1ap.PDU) (*s1ap.PDU, error) {
	switch msg := pdu.Value.(type) {
	case *s1ap.S1SetupRequest:
		return d.handleS1SetupRequest(assoc, msg), nil
	case *s1ap.InitialUEMessage:
		return d.handleInitialUEMessage(ctx, assoc, msg)
	default:
		return nil, fmt.Errorf("%w: %s %s", ErrUnexpectedMessage, pdu.Kind(), pdu.Procedure())
	}
}

// AssociationClosed forgets every eNodeB that was set up over assoc.
func (d *Dispatcher) AssociationClosed(assoc *state.Association) {
	gone := d.enbs.RemoveAssociation(assoc.ID)
	if len(gone) > 0 {
		d.log.Infof("association %s closed, removed eNBs %v", assoc.ID, gone)
	}
	d.metrics.SetENBs(d.enbs.Len())
}

func (d *Dispatcher) handleS1SetupRequest(assoc *state.Association, msg *s1ap.S1SetupRequest) *s1ap.PDU {
	d.logSetupRequest(msg)

	if msg.GlobalENBID.PLMN != d.mme.PLMN {
		d.log.Warnf("S1 Setup from eNB %d rejected: PLMN %s is not served, MME PLMN is %s",
			msg.GlobalENBID.ENBID, msg.GlobalENBID.PLMN, d.mme.PLMN)
		return s1ap.NewPDU(&s1ap.S1SetupFailure{Cause: s1ap.UnknownOperatorIdentity})
	}

	session := enb.Session{
		Name:         msg.ENBName,
		PLMN:         msg.GlobalENBID.PLMN,
		SupportedTAs: msg.SupportedTAs,
		PagingDRX:    msg.DefaultPagingDRX,
		Association:  assoc.ID,
		SetupAt:      time.Now(),
	}
	if prior, replaced := d.enbs.Upsert(msg.GlobalENBID.ENBID, session); replaced {
		d.log.Warnf("eNB %d set up again, replacing session from association %s", prior.ID, prior.Association)
	}
	d.metrics.SetENBs(d.enbs.Len())

	return s1ap.NewPDU(d.mme.setupResponse())
}

func (d *Dispatcher) logSetupRequest(msg *s1ap.S1SetupRequest) {
	d.log.Infof("S1 Setup Request: eNB name %q, id %d, PLMN %s, paging DRX %d",
		msg.ENBName, msg.GlobalENBID.ENBID, msg.GlobalENBID.PLMN, msg.DefaultPagingDRX.Frames())
	for i, ta := range msg.SupportedTAs {
		d.log.Debugf("  TAC[%d] %d", i, ta.TAC)
		for j, p := range ta.BroadcastPLMNs {
			d.log.Debugf("    broadcast PLMN[%d][%d] %s", i, j, p)
		}
	}
}

func (d *Dispatcher) handleInitialUEMessage(ctx context.Context, assoc *state.Association, msg *s1ap.InitialUEMessage) (*s1ap.PDU, error) {
	attach, pdn, err := d.nas.UnpackInitial(msg.NASPDU)
	if err != nil {
		return nil, fmt.Errorf("%w: NAS-PDU of eNB UE %d: %w", errDecode, msg.ENBUES1APID, err)
	}
	imsi, err := attach.IMSI()
	if err != nil {
		return nil, fmt.Errorf("eNB UE %d: %w", msg.ENBUES1APID, err)
	}
	uc := &ue.AttachContext{
		ENBUES1APID: msg.ENBUES1APID,
		IMSI:        imsi.Value(),
		State:       ue.AttachInitiated,
	}
	d.log.Infof("Attach Request from IMSI %015d, eNB UE %d, assoc %s", uc.IMSI, uc.ENBUES1APID, assoc.ID)
	if pdn != nil {
		d.log.Debugf("PDN Connectivity Request: bearer %d, PTI %d, PDN type %d", pdn.EPSBearerID, pdn.PTI, pdn.PDNType)
	}

	vec, err := d.hss.Lookup(ctx, uc.IMSI)
	if err != nil {
		if errors.Is(err, hss.ErrNotFound) {
			d.metrics.SaveAuthVector(metrics.ResultDropped)
			return nil, fmt.Errorf("%w: IMSI %015d: %w", ErrUnknownSubscriber, uc.IMSI, err)
		}
		d.metrics.SaveAuthVector(metrics.ResultFailed)
		return nil, fmt.Errorf("authentication vector for IMSI %015d: %w", uc.IMSI, err)
	}
	d.metrics.SaveAuthVector(metrics.ResultOK)

	if uc.MMEUES1APID, err = d.allocateUEID(); err != nil {
		return nil, err
	}
	uc.State = ue.Authentication
	uc.RAND = vec.RAND
	uc.XRES = vec.XRES

	return d.authenticationRequest(uc, vec)
}

func (d *Dispatcher) authenticationRequest(uc *ue.AttachContext, vec *hss.Vector) (*s1ap.PDU, error) {
	raw, err := d.nas.PackAuthenticationRequest(&nas.AuthenticationRequestMsg{
		RAND: vec.RAND,
		AUTN: vec.AUTN,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: Authentication Request for IMSI %015d: %w", errEncode, uc.IMSI, err)
	}
	d.log.Infof("Authentication Request to IMSI %015d, MME UE %d, eNB UE %d", uc.IMSI, uc.MMEUES1APID, uc.ENBUES1APID)

	return s1ap.NewPDU(&s1ap.DownlinkNASTransport{
		MMEUES1APID: uc.MMEUES1APID,
		ENBUES1APID: uc.ENBUES1APID,
		NASPDU:      raw,
	}), nil
}

// allocateUEID hands out MME UE S1AP IDs starting at 1. IDs are never reused.
func (d *Dispatcher) allocateUEID() (uint32, error) {
	for {
		last := d.lastUEID.Load()
		if last == math.MaxUint32 {
			return 0, ErrUEIDExhausted
		}
		if d.lastUEID.CompareAndSwap(last, last+1) {
			return last + 1, nil
		}
	}
}
