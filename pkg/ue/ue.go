package ue

type StateType string

// EMM state of a UE as tracked by the MME
const (
	Deregistered    StateType = "Deregistered"
	AttachInitiated StateType = "AttachInitiated"
	Authentication  StateType = "Authentication"
	SecurityMode    StateType = "SecurityMode"
	Registered      StateType = "Registered"
)

// AttachContext lives only while the reply to an Initial UE Message is built.
type AttachContext struct {
	ENBUES1APID uint32
	MMEUES1APID uint32
	IMSI        uint64
	State       StateType
	// RAND and XRES of the pending challenge
	RAND [16]byte
	XRES []byte
}
