package s1ap

import (
	"fmt"
)

const (
	maxNameLen        = 150
	maxTACs           = 256
	maxBPLMNs         = 6
	maxServedGUMMEIs  = 8
	maxPLMNsPerGUMMEI = 32
	maxCellID         = 0x0fffffff
)

func (m *S1SetupRequest) encode(w *writer) error {
	l, err := w.beginIEs()
	if err != nil {
		return err
	}
	err = l.add(ieGlobalENBID, Reject, "Global-ENB-ID", func(w *writer) error {
		if err := w.plmn(m.GlobalENBID.PLMN, "Global-ENB-ID PLMN"); err != nil {
			return err
		}
		return w.uint16(m.GlobalENBID.ENBID, "eNB-ID")
	})
	if err != nil {
		return err
	}
	if m.ENBName != "" {
		if err := l.add(ieENBName, Ignore, "eNBname", nameEncoder(m.ENBName)); err != nil {
			return err
		}
	}
	err = l.add(ieSupportedTAs, Reject, "SupportedTAs", func(w *writer) error {
		return encodeSupportedTAs(w, m.SupportedTAs)
	})
	if err != nil {
		return err
	}
	err = l.add(ieDefaultPagingDRX, Ignore, "DefaultPagingDRX", func(w *writer) error {
		if m.DefaultPagingDRX > PagingDRX256 {
			return fmt.Errorf("%w: paging DRX %d", ErrInvalidValue, m.DefaultPagingDRX)
		}
		return w.uint8(uint8(m.DefaultPagingDRX), "DefaultPagingDRX")
	})
	if err != nil {
		return err
	}
	l.end()
	return nil
}

func (m *S1SetupRequest) decode(ies *ieSet) error {
	r, err := ies.mandatory(ieGlobalENBID, "Global-ENB-ID")
	if err != nil {
		return err
	}
	if m.GlobalENBID.PLMN, err = r.plmn("Global-ENB-ID PLMN"); err != nil {
		return err
	}
	if m.GlobalENBID.ENBID, err = r.uint16("eNB-ID"); err != nil {
		return err
	}
	if err := r.done("Global-ENB-ID"); err != nil {
		return err
	}

	if r := ies.optional(ieENBName); r != nil {
		if m.ENBName, err = decodeName(r, "eNBname"); err != nil {
			return err
		}
	}

	if r, err = ies.mandatory(ieSupportedTAs, "SupportedTAs"); err != nil {
		return err
	}
	if m.SupportedTAs, err = decodeSupportedTAs(r); err != nil {
		return err
	}

	if r, err = ies.mandatory(ieDefaultPagingDRX, "DefaultPagingDRX"); err != nil {
		return err
	}
	drx, err := r.uint8("DefaultPagingDRX")
	if err != nil {
		return err
	}
	if PagingDRX(drx) > PagingDRX256 {
		return fmt.Errorf("%w: paging DRX %d", ErrMalformed, drx)
	}
	m.DefaultPagingDRX = PagingDRX(drx)
	return r.done("DefaultPagingDRX")
}

func encodeSupportedTAs(w *writer, tas []SupportedTA) error {
	if len(tas) == 0 || len(tas) > maxTACs {
		return fmt.Errorf("%w: %d supported TAs", ErrInvalidValue, len(tas))
	}
	if err := w.uint16(uint16(len(tas)), "SupportedTAs count"); err != nil {
		return err
	}
	for _, ta := range tas {
		if err := w.uint16(ta.TAC, "TAC"); err != nil {
			return err
		}
		if len(ta.BroadcastPLMNs) == 0 || len(ta.BroadcastPLMNs) > maxBPLMNs {
			return fmt.Errorf("%w: %d broadcast PLMNs for TAC %d", ErrInvalidValue, len(ta.BroadcastPLMNs), ta.TAC)
		}
		if err := w.uint8(uint8(len(ta.BroadcastPLMNs)), "BPLMNs count"); err != nil {
			return err
		}
		for _, p := range ta.BroadcastPLMNs {
			if err := w.plmn(p, "broadcast PLMN"); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeSupportedTAs(r *reader) ([]SupportedTA, error) {
	n, err := r.uint16("SupportedTAs count")
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxTACs {
		return nil, fmt.Errorf("%w: %d supported TAs", ErrMalformed, n)
	}
	tas := make([]SupportedTA, 0, n)
	for i := 0; i < int(n); i++ {
		var ta SupportedTA
		if ta.TAC, err = r.uint16("TAC"); err != nil {
			return nil, err
		}
		nb, err := r.uint8("BPLMNs count")
		if err != nil {
			return nil, err
		}
		if nb == 0 || nb > maxBPLMNs {
			return nil, fmt.Errorf("%w: %d broadcast PLMNs for TAC %d", ErrMalformed, nb, ta.TAC)
		}
		ta.BroadcastPLMNs = make([]PLMN, 0, nb)
		for j := 0; j < int(nb); j++ {
			p, err := r.plmn("broadcast PLMN")
			if err != nil {
				return nil, err
			}
			ta.BroadcastPLMNs = append(ta.BroadcastPLMNs, p)
		}
		tas = append(tas, ta)
	}
	return tas, r.done("SupportedTAs")
}

func nameEncoder(name string) func(w *writer) error {
	return func(w *writer) error {
		if len(name) > maxNameLen {
			return fmt.Errorf("%w: name is %d bytes", ErrInvalidValue, len(name))
		}
		return w.bytes([]byte(name), "name")
	}
}

func decodeName(r *reader, what string) (string, error) {
	if r.remaining() == 0 || r.remaining() > maxNameLen {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrMalformed, what, r.remaining())
	}
	b, err := r.bytes(r.remaining(), what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *S1SetupResponse) encode(w *writer) error {
	l, err := w.beginIEs()
	if err != nil {
		return err
	}
	if m.MMEName != "" {
		if err := l.add(ieMMEName, Ignore, "MMEname", nameEncoder(m.MMEName)); err != nil {
			return err
		}
	}
	err = l.add(ieServedGUMMEIs, Reject, "ServedGUMMEIs", func(w *writer) error {
		return encodeServedGUMMEIs(w, m.ServedGUMMEIs)
	})
	if err != nil {
		return err
	}
	err = l.add(ieRelativeMMECapacity, Ignore, "RelativeMMECapacity", func(w *writer) error {
		return w.uint8(m.RelativeMMECapacity, "RelativeMMECapacity")
	})
	if err != nil {
		return err
	}
	l.end()
	return nil
}

func (m *S1SetupResponse) decode(ies *ieSet) error {
	var err error
	if r := ies.optional(ieMMEName); r != nil {
		if m.MMEName, err = decodeName(r, "MMEname"); err != nil {
			return err
		}
	}
	r, err := ies.mandatory(ieServedGUMMEIs, "ServedGUMMEIs")
	if err != nil {
		return err
	}
	if m.ServedGUMMEIs, err = decodeServedGUMMEIs(r); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieRelativeMMECapacity, "RelativeMMECapacity"); err != nil {
		return err
	}
	if m.RelativeMMECapacity, err = r.uint8("RelativeMMECapacity"); err != nil {
		return err
	}
	return r.done("RelativeMMECapacity")
}

func encodeServedGUMMEIs(w *writer, gs []ServedGUMMEI) error {
	if len(gs) == 0 || len(gs) > maxServedGUMMEIs {
		return fmt.Errorf("%w: %d served GUMMEIs", ErrInvalidValue, len(gs))
	}
	if err := w.uint8(uint8(len(gs)), "ServedGUMMEIs count"); err != nil {
		return err
	}
	for _, g := range gs {
		if len(g.PLMNs) == 0 || len(g.PLMNs) > maxPLMNsPerGUMMEI {
			return fmt.Errorf("%w: %d served PLMNs", ErrInvalidValue, len(g.PLMNs))
		}
		if err := w.uint8(uint8(len(g.PLMNs)), "servedPLMNs count"); err != nil {
			return err
		}
		for _, p := range g.PLMNs {
			if err := w.plmn(p, "served PLMN"); err != nil {
				return err
			}
		}
		if len(g.GroupIDs) == 0 || len(g.GroupIDs) > 0xff {
			return fmt.Errorf("%w: %d served group ids", ErrInvalidValue, len(g.GroupIDs))
		}
		if err := w.uint8(uint8(len(g.GroupIDs)), "servedGroupIDs count"); err != nil {
			return err
		}
		for _, id := range g.GroupIDs {
			if err := w.uint16(id, "MME group id"); err != nil {
				return err
			}
		}
		if len(g.Codes) == 0 || len(g.Codes) > 0xff {
			return fmt.Errorf("%w: %d served MME codes", ErrInvalidValue, len(g.Codes))
		}
		if err := w.uint8(uint8(len(g.Codes)), "servedMMECs count"); err != nil {
			return err
		}
		if err := w.bytes(g.Codes, "MME codes"); err != nil {
			return err
		}
	}
	return nil
}

func decodeServedGUMMEIs(r *reader) ([]ServedGUMMEI, error) {
	n, err := r.uint8("ServedGUMMEIs count")
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxServedGUMMEIs {
		return nil, fmt.Errorf("%w: %d served GUMMEIs", ErrMalformed, n)
	}
	gs := make([]ServedGUMMEI, 0, n)
	for i := 0; i < int(n); i++ {
		var g ServedGUMMEI
		np, err := r.uint8("servedPLMNs count")
		if err != nil {
			return nil, err
		}
		if np == 0 || np > maxPLMNsPerGUMMEI {
			return nil, fmt.Errorf("%w: %d served PLMNs", ErrMalformed, np)
		}
		for j := 0; j < int(np); j++ {
			p, err := r.plmn("served PLMN")
			if err != nil {
				return nil, err
			}
			g.PLMNs = append(g.PLMNs, p)
		}
		ng, err := r.uint8("servedGroupIDs count")
		if err != nil {
			return nil, err
		}
		if ng == 0 {
			return nil, fmt.Errorf("%w: no served group ids", ErrMalformed)
		}
		for j := 0; j < int(ng); j++ {
			id, err := r.uint16("MME group id")
			if err != nil {
				return nil, err
			}
			g.GroupIDs = append(g.GroupIDs, id)
		}
		nc, err := r.uint8("servedMMECs count")
		if err != nil {
			return nil, err
		}
		if nc == 0 {
			return nil, fmt.Errorf("%w: no served MME codes", ErrMalformed)
		}
		if g.Codes, err = r.bytes(int(nc), "MME codes"); err != nil {
			return nil, err
		}
		gs = append(gs, g)
	}
	return gs, r.done("ServedGUMMEIs")
}

func (m *S1SetupFailure) encode(w *writer) error {
	l, err := w.beginIEs()
	if err != nil {
		return err
	}
	err = l.add(ieCause, Ignore, "Cause", func(w *writer) error {
		if m.Cause.Group > CauseMisc {
			return fmt.Errorf("%w: cause group %d", ErrInvalidValue, m.Cause.Group)
		}
		if err := w.uint8(uint8(m.Cause.Group), "cause group"); err != nil {
			return err
		}
		return w.uint8(m.Cause.Value, "cause value")
	})
	if err != nil {
		return err
	}
	if m.TimeToWait != nil {
		err = l.add(ieTimeToWait, Ignore, "TimeToWait", func(w *writer) error {
			if *m.TimeToWait > TimeToWait60s {
				return fmt.Errorf("%w: time to wait %d", ErrInvalidValue, *m.TimeToWait)
			}
			return w.uint8(uint8(*m.TimeToWait), "TimeToWait")
		})
		if err != nil {
			return err
		}
	}
	l.end()
	return nil
}

func (m *S1SetupFailure) decode(ies *ieSet) error {
	r, err := ies.mandatory(ieCause, "Cause")
	if err != nil {
		return err
	}
	g, err := r.uint8("cause group")
	if err != nil {
		return err
	}
	if CauseGroup(g) > CauseMisc {
		return fmt.Errorf("%w: cause group %d", ErrMalformed, g)
	}
	m.Cause.Group = CauseGroup(g)
	if m.Cause.Value, err = r.uint8("cause value"); err != nil {
		return err
	}
	if err := r.done("Cause"); err != nil {
		return err
	}
	if r := ies.optional(ieTimeToWait); r != nil {
		v, err := r.uint8("TimeToWait")
		if err != nil {
			return err
		}
		if TimeToWait(v) > TimeToWait60s {
			return fmt.Errorf("%w: time to wait %d", ErrMalformed, v)
		}
		t := TimeToWait(v)
		m.TimeToWait = &t
		return r.done("TimeToWait")
	}
	return nil
}

func (m *InitialUEMessage) encode(w *writer) error {
	l, err := w.beginIEs()
	if err != nil {
		return err
	}
	if err := l.add(ieENBUES1APID, Reject, "eNB-UE-S1AP-ID", uint32Encoder(m.ENBUES1APID)); err != nil {
		return err
	}
	if err := l.add(ieNASPDU, Reject, "NAS-PDU", nasEncoder(m.NASPDU)); err != nil {
		return err
	}
	err = l.add(ieTAI, Reject, "TAI", func(w *writer) error {
		if err := w.plmn(m.TAI.PLMN, "TAI PLMN"); err != nil {
			return err
		}
		return w.uint16(m.TAI.TAC, "TAI TAC")
	})
	if err != nil {
		return err
	}
	err = l.add(ieEUTRANCGI, Ignore, "EUTRAN-CGI", func(w *writer) error {
		if m.EUTRANCGI.CellID > maxCellID {
			return fmt.Errorf("%w: cell id %#x", ErrInvalidValue, m.EUTRANCGI.CellID)
		}
		if err := w.plmn(m.EUTRANCGI.PLMN, "EUTRAN-CGI PLMN"); err != nil {
			return err
		}
		return w.uint32(m.EUTRANCGI.CellID, "cell id")
	})
	if err != nil {
		return err
	}
	err = l.add(ieRRCEstablishmentCause, Ignore, "RRC-Establishment-Cause", func(w *writer) error {
		return w.uint8(m.RRCEstablishmentCause, "RRC-Establishment-Cause")
	})
	if err != nil {
		return err
	}
	l.end()
	return nil
}

func (m *InitialUEMessage) decode(ies *ieSet) error {
	r, err := ies.mandatory(ieENBUES1APID, "eNB-UE-S1AP-ID")
	if err != nil {
		return err
	}
	if m.ENBUES1APID, err = decodeUint32(r, "eNB-UE-S1AP-ID"); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieNASPDU, "NAS-PDU"); err != nil {
		return err
	}
	if m.NASPDU, err = decodeNAS(r); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieTAI, "TAI"); err != nil {
		return err
	}
	if m.TAI.PLMN, err = r.plmn("TAI PLMN"); err != nil {
		return err
	}
	if m.TAI.TAC, err = r.uint16("TAI TAC"); err != nil {
		return err
	}
	if err := r.done("TAI"); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieEUTRANCGI, "EUTRAN-CGI"); err != nil {
		return err
	}
	if m.EUTRANCGI.PLMN, err = r.plmn("EUTRAN-CGI PLMN"); err != nil {
		return err
	}
	if m.EUTRANCGI.CellID, err = r.uint32("cell id"); err != nil {
		return err
	}
	if m.EUTRANCGI.CellID > maxCellID {
		return fmt.Errorf("%w: cell id %#x", ErrMalformed, m.EUTRANCGI.CellID)
	}
	if err := r.done("EUTRAN-CGI"); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieRRCEstablishmentCause, "RRC-Establishment-Cause"); err != nil {
		return err
	}
	if m.RRCEstablishmentCause, err = r.uint8("RRC-Establishment-Cause"); err != nil {
		return err
	}
	return r.done("RRC-Establishment-Cause")
}

func (m *DownlinkNASTransport) encode(w *writer) error {
	l, err := w.beginIEs()
	if err != nil {
		return err
	}
	if err := l.add(ieMMEUES1APID, Reject, "MME-UE-S1AP-ID", uint32Encoder(m.MMEUES1APID)); err != nil {
		return err
	}
	if err := l.add(ieENBUES1APID, Reject, "eNB-UE-S1AP-ID", uint32Encoder(m.ENBUES1APID)); err != nil {
		return err
	}
	if err := l.add(ieNASPDU, Reject, "NAS-PDU", nasEncoder(m.NASPDU)); err != nil {
		return err
	}
	l.end()
	return nil
}

func (m *DownlinkNASTransport) decode(ies *ieSet) error {
	r, err := ies.mandatory(ieMMEUES1APID, "MME-UE-S1AP-ID")
	if err != nil {
		return err
	}
	if m.MMEUES1APID, err = decodeUint32(r, "MME-UE-S1AP-ID"); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieENBUES1APID, "eNB-UE-S1AP-ID"); err != nil {
		return err
	}
	if m.ENBUES1APID, err = decodeUint32(r, "eNB-UE-S1AP-ID"); err != nil {
		return err
	}
	if r, err = ies.mandatory(ieNASPDU, "NAS-PDU"); err != nil {
		return err
	}
	m.NASPDU, err = decodeNAS(r)
	return err
}

func uint32Encoder(v uint32) func(w *writer) error {
	return func(w *writer) error {
		return w.uint32(v, "UE S1AP id")
	}
}

func decodeUint32(r *reader, what string) (uint32, error) {
	v, err := r.uint32(what)
	if err != nil {
		return 0, err
	}
	return v, r.done(what)
}

func nasEncoder(pdu []byte) func(w *writer) error {
	return func(w *writer) error {
		if len(pdu) == 0 {
			return fmt.Errorf("%w: empty NAS-PDU", ErrInvalidValue)
		}
		return w.bytes(pdu, "NAS-PDU")
	}
}

func decodeNAS(r *reader) ([]byte, error) {
	if r.remaining() == 0 {
		return nil, fmt.Errorf("%w: empty NAS-PDU", ErrMalformed)
	}
	return r.bytes(r.remaining(), "NAS-PDU")
}
