package s1ap

import (
	"errors"
	"strconv"
)

var (
	ErrMalformed    = errors.New("malformed S1AP PDU")
	ErrOverflow     = errors.New("S1AP PDU exceeds capacity")
	ErrUnsupported  = errors.New("unsupported S1AP procedure")
	ErrInvalidValue = errors.New("invalid S1AP field value")
)

// Kind is the S1AP-PDU choice.
type Kind uint8

const (
	InitiatingMessage Kind = iota
	SuccessfulOutcome
	UnsuccessfulOutcome
)

func (k Kind) String() string {
	switch k {
	case InitiatingMessage:
		return "InitiatingMessage"
	case SuccessfulOutcome:
		return "SuccessfulOutcome"
	case UnsuccessfulOutcome:
		return "UnsuccessfulOutcome"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

type ProcedureCode uint8

const (
	ProcDownlinkNASTransport ProcedureCode = 11
	ProcInitialUEMessage     ProcedureCode = 12
	ProcS1Setup              ProcedureCode = 17
)

func (p ProcedureCode) String() string {
	switch p {
	case ProcDownlinkNASTransport:
		return "DownlinkNASTransport"
	case ProcInitialUEMessage:
		return "InitialUEMessage"
	case ProcS1Setup:
		return "S1Setup"
	}
	return "Procedure(" + strconv.Itoa(int(p)) + ")"
}

type Criticality uint8

const (
	Reject Criticality = iota
	Ignore
	Notify
)

// ProtocolIE ids.
const (
	ieMMEUES1APID           uint16 = 0
	ieCause                 uint16 = 2
	ieENBUES1APID           uint16 = 8
	ieNASPDU                uint16 = 26
	ieGlobalENBID           uint16 = 59
	ieENBName               uint16 = 60
	ieMMEName               uint16 = 61
	ieSupportedTAs          uint16 = 64
	ieTimeToWait            uint16 = 65
	ieTAI                   uint16 = 67
	ieRelativeMMECapacity   uint16 = 87
	ieEUTRANCGI             uint16 = 100
	ieServedGUMMEIs         uint16 = 105
	ieRRCEstablishmentCause uint16 = 134
	ieDefaultPagingDRX      uint16 = 137
)

// PagingDRX is the default paging cycle in radio frames.
type PagingDRX uint8

const (
	PagingDRX32 PagingDRX = iota
	PagingDRX64
	PagingDRX128
	PagingDRX256
)

func (d PagingDRX) Frames() int {
	return 32 << d
}

type CauseGroup uint8

const (
	CauseRadioNetwork CauseGroup = iota
	CauseTransport
	CauseNAS
	CauseProtocol
	CauseMisc
)

type Cause struct {
	Group CauseGroup
	Value uint8
}

// CauseMisc values.
const (
	CauseMiscControlProcessingOverload uint8 = 0
	CauseMiscHardwareFailure           uint8 = 2
	CauseMiscOMIntervention            uint8 = 3
	CauseMiscUnspecified               uint8 = 4
	CauseMiscUnknownPLMN               uint8 = 5
)

// UnknownOperatorIdentity is sent when an eNB's PLMN is not served here.
var UnknownOperatorIdentity = Cause{Group: CauseMisc, Value: CauseMiscUnknownPLMN}

// TimeToWait values.
type TimeToWait uint8

const (
	TimeToWait1s TimeToWait = iota
	TimeToWait2s
	TimeToWait5s
	TimeToWait10s
	TimeToWait20s
	TimeToWait60s
)

type GlobalENBID struct {
	PLMN  PLMN
	ENBID uint16
}

type SupportedTA struct {
	TAC            uint16
	BroadcastPLMNs []PLMN
}

type TAI struct {
	PLMN PLMN
	TAC  uint16
}

type EUTRANCGI struct {
	PLMN   PLMN
	CellID uint32 // 28 bits
}

type ServedGUMMEI struct {
	PLMNs    []PLMN
	GroupIDs []uint16
	Codes    []uint8
}

// Message is one procedure-specific payload. The set is closed: only this
// package implements it.
type Message interface {
	Kind() Kind
	Procedure() ProcedureCode
	encode(w *writer) error
	decode(ies *ieSet) error
}

type S1SetupRequest struct {
	GlobalENBID      GlobalENBID
	ENBName          string // optional, empty when absent
	SupportedTAs     []SupportedTA
	DefaultPagingDRX PagingDRX
}

type S1SetupResponse struct {
	MMEName             string // optional
	ServedGUMMEIs       []ServedGUMMEI
	RelativeMMECapacity uint8
}

type S1SetupFailure struct {
	Cause      Cause
	TimeToWait *TimeToWait
}

type InitialUEMessage struct {
	ENBUES1APID           uint32
	NASPDU                []byte
	TAI                   TAI
	EUTRANCGI             EUTRANCGI
	RRCEstablishmentCause uint8
}

type DownlinkNASTransport struct {
	MMEUES1APID uint32
	ENBUES1APID uint32
	NASPDU      []byte
}

func (*S1SetupRequest) Kind() Kind { return InitiatingMessage }
func (*S1SetupRequest) Procedure() ProcedureCode { return ProcS1Setup }
func (*S1SetupResponse) Kind() Kind { return SuccessfulOutcome }
func (*S1SetupResponse) Procedure() ProcedureCode { return ProcS1Setup }
func (*S1SetupFailure) Kind() Kind { return UnsuccessfulOutcome }
func (*S1SetupFailure) Procedure() ProcedureCode { return ProcS1Setup }
func (*InitialUEMessage) Kind() Kind { return InitiatingMessage }
func (*InitialUEMessage) Procedure() ProcedureCode { return ProcInitialUEMessage }
func (*DownlinkNASTransport) Kind() Kind { return InitiatingMessage }
func (*DownlinkNASTransport) Procedure() ProcedureCode { return ProcDownlinkNASTransport }

// PDU is the S1AP envelope.
type PDU struct {
	Criticality Criticality
	Value       Message
}

func (p *PDU) Kind() Kind {
	return p.Value.Kind()
}

func (p *PDU) Procedure() ProcedureCode {
	return p.Value.Procedure()
}

// NewPDU wraps a payload with the criticality S1AP assigns to its procedure.
func NewPDU(m Message) *PDU {
	c := Reject
	switch m.(type) {
	case *InitialUEMessage, *DownlinkNASTransport:
		c = Ignore
	}
	return &PDU{Criticality: c, Value: m}
}
