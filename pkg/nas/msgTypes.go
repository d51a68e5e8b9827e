package nas

import (
	"errors"
	"strings"
)

var (
	ErrMalformed        = errors.New("malformed NAS message")
	ErrOverflow         = errors.New("NAS message exceeds capacity")
	ErrUnsupported      = errors.New("unsupported NAS message")
	ErrIdentityNotIMSI  = errors.New("mobile identity is not an IMSI")
	ErrInvalidValue     = errors.New("invalid NAS field value")
	errUnexpectedEPD    = errors.New("unexpected protocol discriminator")
	errUnexpectedMsgTyp = errors.New("unexpected message type")
)

// MaxMessageSize bounds every packed NAS message.
const MaxMessageSize = 1024

// Protocol discriminators.
const (
	PDESM uint8 = 0x2
	PDEMM uint8 = 0x7
)

// Security header types.
const (
	SecHdrPlain                        uint8 = 0
	SecHdrIntegrityProtected           uint8 = 1
	SecHdrIntegrityProtectedCiphered   uint8 = 2
	SecHdrIntegrityProtectedNewContext uint8 = 3
	SecHdrIntegrityCipheredNewContext  uint8 = 4
)

type MsgType uint8

const (
	AttachRequest          MsgType = 0x41
	AuthenticationRequest  MsgType = 0x52
	PDNConnectivityRequest MsgType = 0xd0
)

// Identity types of the EPS mobile identity.
const (
	IdentityIMSI uint8 = 1
	IdentityIMEI uint8 = 3
	IdentityGUTI uint8 = 6
)

// EPS attach types.
const (
	AttachTypeEPS       uint8 = 1
	AttachTypeCombined  uint8 = 2
	AttachTypeEmergency uint8 = 6
)

// NASKeySetID is the 4 bit NAS key set identifier, TSC in bit 4.
type NASKeySetID struct {
	Mapped bool
	Value  uint8 // 0..7, 7 means no key available
}

func (k NASKeySetID) octet() uint8 {
	v := k.Value & 0x07
	if k.Mapped {
		v |= 0x08
	}
	return v
}

func keySetFromNibble(n uint8) NASKeySetID {
	return NASKeySetID{Mapped: n&0x08 != 0, Value: n & 0x07}
}

// IMSI holds the subscriber identity digits, most significant first.
type IMSI []uint8

// Value is the base-10 integer formed by the digits read most significant
// first, so leading zeros vanish.
func (i IMSI) Value() uint64 {
	var v uint64
	for _, d := range i {
		v = v*10 + uint64(d)
	}
	return v
}

func (i IMSI) String() string {
	var b strings.Builder
	for _, d := range i {
		b.WriteByte('0' + d)
	}
	return b.String()
}

// ParseIMSI turns a digit string into an IMSI.
func ParseIMSI(s string) (IMSI, error) {
	if len(s) < 6 || len(s) > 15 {
		return nil, ErrInvalidValue
	}
	imsi := make(IMSI, len(s))
	for n := 0; n < len(s); n++ {
		if s[n] < '0' || s[n] > '9' {
			return nil, ErrInvalidValue
		}
		imsi[n] = s[n] - '0'
	}
	return imsi, nil
}

// MobileIdentity is the EPS mobile identity IE. IMSI is set for identity
// type IMSI, Raw keeps the undecoded value otherwise.
type MobileIdentity struct {
	Type uint8
	IMSI IMSI
	Raw  []byte
}

type AttachRequestMsg struct {
	SecurityHeader      uint8
	AttachType          uint8
	KeySetID            NASKeySetID
	MobileIdentity      MobileIdentity
	UENetworkCapability []byte
	ESMMessageContainer []byte
}

type PDNConnectivityRequestMsg struct {
	EPSBearerID           uint8
	PTI                   uint8
	RequestType           uint8
	PDNType               uint8
	ESMInfoTransferFlag   bool
	AccessPointName       []byte
	ProtocolConfigOptions []byte
}

// AuthenticationRequestMsg carries the challenge towards the UE.
type AuthenticationRequestMsg struct {
	KeySetID NASKeySetID
	RAND     [16]byte
	AUTN     [16]byte
}
