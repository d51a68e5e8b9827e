package s1ap

import (
	"encoding/binary"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPLMN = PLMN{MCC: "001", MNC: "01"}

func sampleMessages() map[string]Message {
	wait := TimeToWait10s
	return map[string]Message{
		"S1SetupRequest": &S1SetupRequest{
			GlobalENBID: GlobalENBID{PLMN: testPLMN, ENBID: 0x19b},
			ENBName:     "enb01",
			SupportedTAs: []SupportedTA{
				{TAC: 7, BroadcastPLMNs: []PLMN{testPLMN, {MCC: "310", MNC: "410"}}},
				{TAC: 8, BroadcastPLMNs: []PLMN{testPLMN}},
			},
			DefaultPagingDRX: PagingDRX128,
		},
		"S1SetupRequest without name": &S1SetupRequest{
			GlobalENBID:      GlobalENBID{PLMN: testPLMN, ENBID: 1},
			SupportedTAs:     []SupportedTA{{TAC: 1, BroadcastPLMNs: []PLMN{testPLMN}}},
			DefaultPagingDRX: PagingDRX32,
		},
		"S1SetupResponse": &S1SetupResponse{
			MMEName: "mme01",
			ServedGUMMEIs: []ServedGUMMEI{{
				PLMNs:    []PLMN{testPLMN},
				GroupIDs: []uint16{1},
				Codes:    []uint8{0x1a},
			}},
			RelativeMMECapacity: 255,
		},
		"S1SetupFailure": &S1SetupFailure{Cause: UnknownOperatorIdentity},
		"S1SetupFailure with wait": &S1SetupFailure{
			Cause:      Cause{Group: CauseMisc, Value: CauseMiscControlProcessingOverload},
			TimeToWait: &wait,
		},
		"InitialUEMessage": &InitialUEMessage{
			ENBUES1APID:           42,
			NASPDU:                []byte{0x07, 0x41, 0x71, 0x08},
			TAI:                   TAI{PLMN: testPLMN, TAC: 7},
			EUTRANCGI:             EUTRANCGI{PLMN: testPLMN, CellID: 0x19b01},
			RRCEstablishmentCause: 3,
		},
		"DownlinkNASTransport": &DownlinkNASTransport{
			MMEUES1APID: 1,
			ENBUES1APID: 42,
			NASPDU:      []byte{0x07, 0x52, 0x00},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for name, msg := range sampleMessages() {
		t.Run(name, func(t *testing.T) {
			pdu := NewPDU(msg)
			buf, err := Encode(pdu)
			require.NoError(t, err)

			got, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, pdu, got)
			assert.Equal(t, msg.Kind(), got.Kind())
			assert.Equal(t, msg.Procedure(), got.Procedure())
		})
	}
}

func TestDecodeHeader(t *testing.T) {
	buf, err := Encode(NewPDU(&S1SetupFailure{Cause: UnknownOperatorIdentity}))
	require.NoError(t, err)

	assert.Equal(t, byte(UnsuccessfulOutcome), buf[0])
	assert.Equal(t, byte(ProcS1Setup), buf[1])
	assert.Equal(t, byte(Reject), buf[2])
	assert.Equal(t, len(buf)-headerLen, int(binary.BigEndian.Uint16(buf[3:5])))
}

func TestDecodeDeclaredLengthExceedsBuffer(t *testing.T) {
	buf, err := Encode(NewPDU(sampleMessages()["InitialUEMessage"]))
	require.NoError(t, err)

	binary.BigEndian.PutUint16(buf[3:5], uint16(len(buf)))
	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)

	// inner IE length pointing past the container
	buf, err = Encode(NewPDU(sampleMessages()["InitialUEMessage"]))
	require.NoError(t, err)
	binary.BigEndian.PutUint16(buf[headerLen+2+3:], 0xffff)
	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeTruncated(t *testing.T) {
	for name, msg := range sampleMessages() {
		buf, err := Encode(NewPDU(msg))
		require.NoError(t, err)
		for i := 0; i < len(buf); i++ {
			_, err := Decode(buf[:i])
			assert.ErrorIsf(t, err, ErrMalformed, "%s truncated to %d", name, i)
		}
	}
}

func TestDecodeOversizedIECount(t *testing.T) {
	buf := []byte{0x00, byte(ProcS1Setup), 0x00, 0x00, 0x02, 0xff, 0xff}
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrMalformed)

	const runs = 100
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	for i := 0; i < runs; i++ {
		Decode(buf)
	}
	runtime.ReadMemStats(&after)
	perDecode := (after.TotalAlloc - before.TotalAlloc) / runs
	assert.Less(t, perDecode, uint64(4096), "allocated %d bytes for a %d byte PDU", perDecode, len(buf))
}

func TestDecodeTrailingBytes(t *testing.T) {
	buf, err := Encode(NewPDU(sampleMessages()["DownlinkNASTransport"]))
	require.NoError(t, err)

	_, err = Decode(append(buf, 0x00))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode([]byte{byte(InitiatingMessage), 13, byte(Ignore), 0, 2, 0, 0})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Decode([]byte{3, byte(ProcS1Setup), byte(Reject), 0, 2, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMissingMandatoryIE(t *testing.T) {
	_, err := Decode([]byte{byte(InitiatingMessage), byte(ProcS1Setup), byte(Reject), 0, 2, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnknownIE(t *testing.T) {
	buf, err := Encode(NewPDU(sampleMessages()["DownlinkNASTransport"]))
	require.NoError(t, err)

	withIE := func(crit Criticality) []byte {
		out := append([]byte{}, buf...)
		out = append(out, 0x03, 0xe7, byte(crit), 0x00, 0x01, 0xaa)
		count := binary.BigEndian.Uint16(out[headerLen:])
		binary.BigEndian.PutUint16(out[headerLen:], count+1)
		binary.BigEndian.PutUint16(out[3:5], uint16(len(out)-headerLen))
		return out
	}

	pdu, err := Decode(withIE(Ignore))
	require.NoError(t, err)
	assert.Equal(t, sampleMessages()["DownlinkNASTransport"], pdu.Value)

	_, err = Decode(withIE(Reject))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeOverflow(t *testing.T) {
	pdu := NewPDU(sampleMessages()["S1SetupRequest"])
	full, err := Encode(pdu)
	require.NoError(t, err)

	_, err = EncodeWithLimit(pdu, len(full)-1)
	assert.ErrorIs(t, err, ErrOverflow)

	buf, err := EncodeWithLimit(pdu, len(full))
	require.NoError(t, err)
	assert.Equal(t, full, buf)

	big := &DownlinkNASTransport{MMEUES1APID: 1, ENBUES1APID: 1, NASPDU: make([]byte, 70000)}
	_, err = EncodeWithLimit(NewPDU(big), 1<<20)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Encode(NewPDU(&DownlinkNASTransport{NASPDU: make([]byte, DefaultMaxPDUSize)}))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestEncodeInvalidValue(t *testing.T) {
	tests := map[string]Message{
		"bad PLMN": &S1SetupRequest{
			GlobalENBID:  GlobalENBID{PLMN: PLMN{MCC: "0a1", MNC: "01"}},
			SupportedTAs: []SupportedTA{{TAC: 1, BroadcastPLMNs: []PLMN{testPLMN}}},
		},
		"no TAs": &S1SetupRequest{
			GlobalENBID: GlobalENBID{PLMN: testPLMN},
		},
		"empty NAS": &DownlinkNASTransport{},
		"cell id": &InitialUEMessage{
			NASPDU:    []byte{1},
			TAI:       TAI{PLMN: testPLMN},
			EUTRANCGI: EUTRANCGI{PLMN: testPLMN, CellID: 0x10000000},
		},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(NewPDU(msg))
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}

	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestPLMNOctets(t *testing.T) {
	tests := []struct {
		plmn PLMN
		want [3]byte
	}{
		{PLMN{MCC: "001", MNC: "01"}, [3]byte{0x00, 0xf1, 0x10}},
		{PLMN{MCC: "310", MNC: "410"}, [3]byte{0x13, 0x00, 0x14}},
		{PLMN{MCC: "208", MNC: "93"}, [3]byte{0x02, 0xf8, 0x39}},
	}
	for _, tt := range tests {
		got, err := tt.plmn.Octets()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		back, err := PLMNFromOctets(got)
		require.NoError(t, err)
		assert.Equal(t, tt.plmn, back)
	}

	_, err := PLMNFromOctets([3]byte{0x0a, 0xf1, 0x10})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func FuzzDecode(f *testing.F) {
	for _, msg := range sampleMessages() {
		buf, err := Encode(NewPDU(msg))
		if err != nil {
			f.Fatal(err)
		}
		f.Add(buf)
	}
	f.Fuzz(func(t *testing.T, buf []byte) {
		pdu, err := Decode(buf)
		if err != nil {
			return
		}
		out, err := Encode(pdu)
		if err != nil {
			return
		}
		again, err := Decode(out)
		require.NoError(t, err)
		assert.Equal(t, pdu, again)
	})
}
