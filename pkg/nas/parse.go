package nas

import (
	"fmt"
)

const (
	secHeaderLen = 5 // MAC and sequence number
	randLen      = 16
	autnLen      = 16
)

// Codec packs and unpacks the EPS NAS messages exchanged during attach.
type Codec struct{}

func (Codec) UnpackInitial(raw []byte) (*AttachRequestMsg, *PDNConnectivityRequestMsg, error) {
	return UnpackInitial(raw)
}

func (Codec) PackAuthenticationRequest(m *AuthenticationRequestMsg) ([]byte, error) {
	return PackAuthenticationRequest(m)
}

func (Codec) UnpackAuthenticationRequest(raw []byte) (*AuthenticationRequestMsg, error) {
	return UnpackAuthenticationRequest(raw)
}

// UnpackInitial decodes the Attach Request carried by an Initial UE Message
// together with the PDN Connectivity Request inside its ESM container.
// Integrity protected messages are accepted without verifying the MAC.
func UnpackInitial(raw []byte) (*AttachRequestMsg, *PDNConnectivityRequestMsg, error) {
	r := &reader{buf: raw}
	first, err := r.octet("header")
	if err != nil {
		return nil, nil, err
	}
	if pd := first & 0x0f; pd != PDEMM {
		return nil, nil, fmt.Errorf("%w: %w %d", ErrUnsupported, errUnexpectedEPD, pd)
	}
	sht := first >> 4
	switch sht {
	case SecHdrPlain:
	case SecHdrIntegrityProtected, SecHdrIntegrityProtectedNewContext:
		if _, err := r.fixed(secHeaderLen, "security header"); err != nil {
			return nil, nil, err
		}
		inner, err := r.octet("inner header")
		if err != nil {
			return nil, nil, err
		}
		if inner != PDEMM {
			return nil, nil, fmt.Errorf("%w: inner header %#02x", ErrMalformed, inner)
		}
	case SecHdrIntegrityProtectedCiphered, SecHdrIntegrityCipheredNewContext:
		return nil, nil, fmt.Errorf("%w: ciphered initial message", ErrUnsupported)
	default:
		return nil, nil, fmt.Errorf("%w: security header type %d", ErrUnsupported, sht)
	}

	mt, err := r.octet("message type")
	if err != nil {
		return nil, nil, err
	}
	if MsgType(mt) != AttachRequest {
		return nil, nil, fmt.Errorf("%w: %w %#02x", ErrUnsupported, errUnexpectedMsgTyp, mt)
	}

	a := &AttachRequestMsg{SecurityHeader: sht}
	o, err := r.octet("attach type")
	if err != nil {
		return nil, nil, err
	}
	a.AttachType = o & 0x07
	a.KeySetID = keySetFromNibble(o >> 4)

	id, err := r.lv("EPS mobile identity")
	if err != nil {
		return nil, nil, err
	}
	if a.MobileIdentity, err = decodeMobileIdentity(id); err != nil {
		return nil, nil, err
	}

	if a.UENetworkCapability, err = r.lv("UE network capability"); err != nil {
		return nil, nil, err
	}
	if n := len(a.UENetworkCapability); n < 2 || n > 13 {
		return nil, nil, fmt.Errorf("%w: UE network capability length %d", ErrMalformed, n)
	}

	if a.ESMMessageContainer, err = r.lve("ESM message container"); err != nil {
		return nil, nil, err
	}
	pdn, err := UnpackPDNConnectivityRequest(a.ESMMessageContainer)
	if err != nil {
		return nil, nil, fmt.Errorf("ESM message container: %w", err)
	}
	// optional IEs after the container are not needed before authentication
	return a, pdn, nil
}

// IMSI returns the subscriber identity or ErrIdentityNotIMSI when the UE
// attached with a GUTI or IMEI.
func (a *AttachRequestMsg) IMSI() (IMSI, error) {
	if a.MobileIdentity.Type != IdentityIMSI {
		return nil, fmt.Errorf("%w: identity type %d", ErrIdentityNotIMSI, a.MobileIdentity.Type)
	}
	return a.MobileIdentity.IMSI, nil
}

func decodeMobileIdentity(v []byte) (MobileIdentity, error) {
	if len(v) == 0 {
		return MobileIdentity{}, fmt.Errorf("%w: empty EPS mobile identity", ErrMalformed)
	}
	m := MobileIdentity{Type: v[0] & 0x07}
	if m.Type != IdentityIMSI {
		m.Raw = append([]byte{}, v...)
		return m, nil
	}

	odd := v[0]&0x08 != 0
	digits := IMSI{v[0] >> 4}
	for n, o := range v[1:] {
		digits = append(digits, o&0x0f)
		if !odd && n == len(v)-2 && o>>4 == 0x0f {
			continue
		}
		digits = append(digits, o>>4)
	}
	if len(digits) > 15 || (len(digits)%2 == 1) != odd {
		return MobileIdentity{}, fmt.Errorf("%w: IMSI of %d digits, odd indicator %t", ErrMalformed, len(digits), odd)
	}
	for _, d := range digits {
		if d > 9 {
			return MobileIdentity{}, fmt.Errorf("%w: IMSI digit %#x", ErrMalformed, d)
		}
	}
	m.IMSI = digits
	return m, nil
}

func encodeMobileIdentity(m MobileIdentity) ([]byte, error) {
	if m.Type != IdentityIMSI {
		if len(m.Raw) == 0 {
			return nil, fmt.Errorf("%w: identity type %d without value", ErrInvalidValue, m.Type)
		}
		return m.Raw, nil
	}
	if len(m.IMSI) == 0 || len(m.IMSI) > 15 {
		return nil, fmt.Errorf("%w: IMSI of %d digits", ErrInvalidValue, len(m.IMSI))
	}
	for _, d := range m.IMSI {
		if d > 9 {
			return nil, fmt.Errorf("%w: IMSI digit %d", ErrInvalidValue, d)
		}
	}
	first := m.IMSI[0]<<4 | IdentityIMSI
	if len(m.IMSI)%2 == 1 {
		first |= 0x08
	}
	out := []byte{first}
	rest := m.IMSI[1:]
	for n := 0; n < len(rest); n += 2 {
		hi := uint8(0x0f)
		if n+1 < len(rest) {
			hi = rest[n+1]
		}
		out = append(out, hi<<4|rest[n])
	}
	return out, nil
}

// UnpackPDNConnectivityRequest decodes a standalone ESM PDN Connectivity
// Request, typically the content of an ESM message container.
func UnpackPDNConnectivityRequest(raw []byte) (*PDNConnectivityRequestMsg, error) {
	r := &reader{buf: raw}
	first, err := r.octet("ESM header")
	if err != nil {
		return nil, err
	}
	if pd := first & 0x0f; pd != PDESM {
		return nil, fmt.Errorf("%w: %w %d", ErrMalformed, errUnexpectedEPD, pd)
	}
	p := &PDNConnectivityRequestMsg{EPSBearerID: first >> 4}
	if p.PTI, err = r.octet("procedure transaction identity"); err != nil {
		return nil, err
	}
	mt, err := r.octet("message type")
	if err != nil {
		return nil, err
	}
	if MsgType(mt) != PDNConnectivityRequest {
		return nil, fmt.Errorf("%w: %w %#02x", ErrUnsupported, errUnexpectedMsgTyp, mt)
	}
	o, err := r.octet("request type")
	if err != nil {
		return nil, err
	}
	p.PDNType = (o >> 4) & 0x07
	p.RequestType = o & 0x07

	for r.remaining() > 0 {
		iei, _ := r.octet("IEI")
		switch {
		case iei>>4 == 0x0d:
			p.ESMInfoTransferFlag = iei&0x01 != 0
		case iei&0x80 != 0:
			// other half octet IEs carry nothing needed here
		case iei == 0x28:
			if p.AccessPointName, err = r.lv("access point name"); err != nil {
				return nil, err
			}
		case iei == 0x27:
			if p.ProtocolConfigOptions, err = r.lv("protocol configuration options"); err != nil {
				return nil, err
			}
		case iei>>4 == 0x07:
			if _, err := r.lve(fmt.Sprintf("IE %#02x", iei)); err != nil {
				return nil, err
			}
		default:
			if _, err := r.lv(fmt.Sprintf("IE %#02x", iei)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func PackPDNConnectivityRequest(p *PDNConnectivityRequestMsg) ([]byte, error) {
	if p.EPSBearerID > 0x0f || p.PDNType > 0x07 || p.RequestType > 0x07 {
		return nil, fmt.Errorf("%w: PDN connectivity request fields", ErrInvalidValue)
	}
	w := newWriter()
	err := w.raw("header", p.EPSBearerID<<4|PDESM, p.PTI, byte(PDNConnectivityRequest), p.PDNType<<4|p.RequestType)
	if err != nil {
		return nil, err
	}
	if p.ESMInfoTransferFlag {
		if err := w.raw("ESM information transfer flag", 0xd1); err != nil {
			return nil, err
		}
	}
	if p.AccessPointName != nil {
		if err := w.raw("APN IEI", 0x28); err != nil {
			return nil, err
		}
		if err := w.lv(p.AccessPointName, "access point name"); err != nil {
			return nil, err
		}
	}
	if p.ProtocolConfigOptions != nil {
		if err := w.raw("PCO IEI", 0x27); err != nil {
			return nil, err
		}
		if err := w.lv(p.ProtocolConfigOptions, "protocol configuration options"); err != nil {
			return nil, err
		}
	}
	return w.buf, nil
}

// PackAttachRequest builds a plain Attach Request. When pdn is non-nil it
// replaces the ESM message container.
func PackAttachRequest(a *AttachRequestMsg, pdn *PDNConnectivityRequestMsg) ([]byte, error) {
	if a.AttachType > 0x07 || a.KeySetID.Value > 0x07 {
		return nil, fmt.Errorf("%w: attach type or key set identifier", ErrInvalidValue)
	}
	if n := len(a.UENetworkCapability); n < 2 || n > 13 {
		return nil, fmt.Errorf("%w: UE network capability length %d", ErrInvalidValue, n)
	}
	id, err := encodeMobileIdentity(a.MobileIdentity)
	if err != nil {
		return nil, err
	}
	esm := a.ESMMessageContainer
	if pdn != nil {
		if esm, err = PackPDNConnectivityRequest(pdn); err != nil {
			return nil, err
		}
	}

	w := newWriter()
	if err := w.raw("header", PDEMM, byte(AttachRequest), a.KeySetID.octet()<<4|a.AttachType); err != nil {
		return nil, err
	}
	if err := w.lv(id, "EPS mobile identity"); err != nil {
		return nil, err
	}
	if err := w.lv(a.UENetworkCapability, "UE network capability"); err != nil {
		return nil, err
	}
	if err := w.lve(esm, "ESM message container"); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// PackAuthenticationRequest produces the plain EMM Authentication Request.
func PackAuthenticationRequest(m *AuthenticationRequestMsg) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil authentication request", ErrInvalidValue)
	}
	if m.KeySetID.Value > 0x07 {
		return nil, fmt.Errorf("%w: key set identifier %d", ErrInvalidValue, m.KeySetID.Value)
	}
	w := newWriter()
	if err := w.raw("header", PDEMM, byte(AuthenticationRequest), m.KeySetID.octet()); err != nil {
		return nil, err
	}
	if err := w.raw("RAND", m.RAND[:]...); err != nil {
		return nil, err
	}
	if err := w.lv(m.AUTN[:], "AUTN"); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func UnpackAuthenticationRequest(raw []byte) (*AuthenticationRequestMsg, error) {
	r := &reader{buf: raw}
	hdr, err := r.fixed(3, "header")
	if err != nil {
		return nil, err
	}
	if hdr[0] != PDEMM {
		return nil, fmt.Errorf("%w: header %#02x", ErrUnsupported, hdr[0])
	}
	if MsgType(hdr[1]) != AuthenticationRequest {
		return nil, fmt.Errorf("%w: %w %#02x", ErrUnsupported, errUnexpectedMsgTyp, hdr[1])
	}
	m := &AuthenticationRequestMsg{KeySetID: keySetFromNibble(hdr[2] & 0x0f)}
	rand, err := r.fixed(randLen, "RAND")
	if err != nil {
		return nil, err
	}
	copy(m.RAND[:], rand)
	autn, err := r.lv("AUTN")
	if err != nil {
		return nil, err
	}
	if len(autn) != autnLen {
		return nil, fmt.Errorf("%w: AUTN length %d", ErrMalformed, len(autn))
	}
	copy(m.AUTN[:], autn)
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing octets", ErrMalformed, r.remaining())
	}
	return m, nil
}
