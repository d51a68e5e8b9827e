package s1ap

import (
	"fmt"
)

// PLMN is an operator identity, MCC is three digits, MNC two or three.
type PLMN struct {
	MCC string
	MNC string
}

func (p PLMN) String() string {
	return p.MCC + "-" + p.MNC
}

// Validate reports whether the digits can be carried in TBCD.
func (p PLMN) Validate() error {
	if len(p.MCC) != 3 || !allDigits(p.MCC) {
		return fmt.Errorf("%w: MCC %q", ErrInvalidValue, p.MCC)
	}
	if (len(p.MNC) != 2 && len(p.MNC) != 3) || !allDigits(p.MNC) {
		return fmt.Errorf("%w: MNC %q", ErrInvalidValue, p.MNC)
	}
	return nil
}

// Octets returns the 3 octet TBCD form used in S1AP and NAS:
// MCC2|MCC1, MNC3|MCC3, MNC2|MNC1 with MNC3 = 0xF for two digit MNCs.
func (p PLMN) Octets() ([3]byte, error) {
	var o [3]byte
	if err := p.Validate(); err != nil {
		return o, err
	}
	mnc3 := byte(0x0f)
	if len(p.MNC) == 3 {
		mnc3 = p.MNC[2] - '0'
	}
	o[0] = (p.MCC[1]-'0')<<4 | (p.MCC[0] - '0')
	o[1] = mnc3<<4 | (p.MCC[2] - '0')
	o[2] = (p.MNC[1]-'0')<<4 | (p.MNC[0] - '0')
	return o, nil
}

// PLMNFromOctets decodes the TBCD form.
func PLMNFromOctets(o [3]byte) (PLMN, error) {
	d := [6]byte{o[0] & 0x0f, o[0] >> 4, o[1] & 0x0f, o[1] >> 4, o[2] & 0x0f, o[2] >> 4}
	for i, v := range d {
		if v > 9 && !(i == 3 && v == 0x0f) {
			return PLMN{}, fmt.Errorf("%w: PLMN octets %x", ErrMalformed, o)
		}
	}
	p := PLMN{
		MCC: string([]byte{'0' + d[0], '0' + d[1], '0' + d[2]}),
		MNC: string([]byte{'0' + d[4], '0' + d[5]}),
	}
	if d[3] != 0x0f {
		p.MNC += string('0' + d[3])
	}
	return p, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (w *writer) plmn(p PLMN, what string) error {
	o, err := p.Octets()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return w.bytes(o[:], what)
}

func (r *reader) plmn(what string) (PLMN, error) {
	if err := r.need(3, what); err != nil {
		return PLMN{}, err
	}
	var o [3]byte
	copy(o[:], r.buf[r.off:r.off+3])
	r.off += 3
	return PLMNFromOctets(o)
}
