package s1ap

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxPDUSize bounds Encode when no explicit capacity is given.
const DefaultMaxPDUSize = 8192

const headerLen = 5

// Decode parses one S1AP PDU. It never reads outside buf and fails with
// ErrMalformed on any length or shape mismatch.
func Decode(buf []byte) (*PDU, error) {
	r := newReader(buf)

	kind, err := r.uint8("kind")
	if err != nil {
		return nil, err
	}
	proc, err := r.uint8("procedure code")
	if err != nil {
		return nil, err
	}
	crit, err := r.uint8("criticality")
	if err != nil {
		return nil, err
	}
	if Criticality(crit) > Notify {
		return nil, fmt.Errorf("%w: criticality %d", ErrMalformed, crit)
	}
	n, err := r.uint16("value length")
	if err != nil {
		return nil, err
	}
	body, err := r.sub(int(n), "value")
	if err != nil {
		return nil, err
	}
	if err := r.done("PDU"); err != nil {
		return nil, err
	}

	msg, err := newMessage(Kind(kind), ProcedureCode(proc))
	if err != nil {
		return nil, err
	}
	ies, err := readIEs(body)
	if err != nil {
		return nil, err
	}
	if err := msg.decode(ies); err != nil {
		return nil, fmt.Errorf("%s %s: %w", Kind(kind), ProcedureCode(proc), err)
	}
	if err := ies.finish(); err != nil {
		return nil, err
	}
	return &PDU{Criticality: Criticality(crit), Value: msg}, nil
}

func newMessage(k Kind, p ProcedureCode) (Message, error) {
	switch {
	case k == InitiatingMessage && p == ProcS1Setup:
		return &S1SetupRequest{}, nil
	case k == SuccessfulOutcome && p == ProcS1Setup:
		return &S1SetupResponse{}, nil
	case k == UnsuccessfulOutcome && p == ProcS1Setup:
		return &S1SetupFailure{}, nil
	case k == InitiatingMessage && p == ProcInitialUEMessage:
		return &InitialUEMessage{}, nil
	case k == InitiatingMessage && p == ProcDownlinkNASTransport:
		return &DownlinkNASTransport{}, nil
	case k > UnsuccessfulOutcome:
		return nil, fmt.Errorf("%w: PDU kind %d", ErrMalformed, k)
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, k, p)
}

// Encode serialises p into at most DefaultMaxPDUSize bytes.
func Encode(p *PDU) ([]byte, error) {
	return EncodeWithLimit(p, DefaultMaxPDUSize)
}

// EncodeWithLimit serialises p and fails with ErrOverflow instead of
// producing more than limit bytes.
func EncodeWithLimit(p *PDU, limit int) ([]byte, error) {
	if p == nil || p.Value == nil {
		return nil, fmt.Errorf("%w: empty PDU", ErrInvalidValue)
	}
	if p.Criticality > Notify {
		return nil, fmt.Errorf("%w: criticality %d", ErrInvalidValue, p.Criticality)
	}
	if limit < headerLen {
		return nil, fmt.Errorf("%w: capacity %d below header size", ErrOverflow, limit)
	}
	w := newWriter(limit)
	if err := w.uint8(uint8(p.Kind()), "kind"); err != nil {
		return nil, err
	}
	if err := w.uint8(uint8(p.Procedure()), "procedure code"); err != nil {
		return nil, err
	}
	if err := w.uint8(uint8(p.Criticality), "criticality"); err != nil {
		return nil, err
	}
	err := w.lengthPrefixed("value", func() error {
		return p.Value.encode(w)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", p.Kind(), p.Procedure(), err)
	}
	return w.buf, nil
}

type ie struct {
	crit Criticality
	val  *reader
	used bool
}

// ieSet is a decoded ProtocolIE-Container.
type ieSet struct {
	byID  map[uint16]*ie
	order []uint16
}

func readIEs(r *reader) (*ieSet, error) {
	count, err := r.uint16("IE count")
	if err != nil {
		return nil, err
	}
	// an IE header takes 5 octets, the buffer bounds the real count
	s := &ieSet{byID: make(map[uint16]*ie, min(int(count), r.remaining()/5))}
	for i := 0; i < int(count); i++ {
		id, err := r.uint16("IE id")
		if err != nil {
			return nil, err
		}
		crit, err := r.uint8("IE criticality")
		if err != nil {
			return nil, err
		}
		if Criticality(crit) > Notify {
			return nil, fmt.Errorf("%w: IE %d criticality %d", ErrMalformed, id, crit)
		}
		n, err := r.uint16("IE length")
		if err != nil {
			return nil, err
		}
		val, err := r.sub(int(n), "IE value")
		if err != nil {
			return nil, err
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate IE %d", ErrMalformed, id)
		}
		s.byID[id] = &ie{crit: Criticality(crit), val: val}
		s.order = append(s.order, id)
	}
	if err := r.done("IE container"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ieSet) mandatory(id uint16, what string) (*reader, error) {
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: missing mandatory IE %s (%d)", ErrMalformed, what, id)
	}
	e.used = true
	return e.val, nil
}

// optional returns nil when the IE is absent.
func (s *ieSet) optional(id uint16) *reader {
	e, ok := s.byID[id]
	if !ok {
		return nil
	}
	e.used = true
	return e.val
}

// finish rejects IEs nobody consumed unless the sender marked them ignorable.
func (s *ieSet) finish() error {
	for _, id := range s.order {
		e := s.byID[id]
		if !e.used && e.crit == Reject {
			return fmt.Errorf("%w: unknown IE %d with criticality reject", ErrMalformed, id)
		}
	}
	return nil
}

type ieList struct {
	w       *writer
	countAt int
	n       int
}

func (w *writer) beginIEs() (*ieList, error) {
	at := w.len()
	if err := w.uint16(0, "IE count"); err != nil {
		return nil, err
	}
	return &ieList{w: w, countAt: at}, nil
}

func (l *ieList) add(id uint16, c Criticality, what string, fn func(w *writer) error) error {
	if err := l.w.uint16(id, what+" id"); err != nil {
		return err
	}
	if err := l.w.uint8(uint8(c), what+" criticality"); err != nil {
		return err
	}
	err := l.w.lengthPrefixed(what, func() error {
		return fn(l.w)
	})
	if err != nil {
		return err
	}
	l.n++
	return nil
}

func (l *ieList) end() {
	binary.BigEndian.PutUint16(l.w.buf[l.countAt:], uint16(l.n))
}
