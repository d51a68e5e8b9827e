package metrics

import "time"

const (
	DirIncoming = "incoming"
	DirOutgoing = "outgoing"
)

// Results of a handled message.
const (
	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultDropped   = "dropped"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

type Message struct {
	Procedure string
	Direction string
	Result    string

	StartedAt time.Time
	Duration  float64
}

func NewMessage(procedure, direction string) *Message {
	return &Message{
		Procedure: procedure,
		Direction: direction,

		StartedAt: time.Now(),
	}
}

func (m *Message) Finish(result string) {
	m.Result = result
	m.Duration = time.Since(m.StartedAt).Seconds()
}

type Association struct {
	OpenedAt time.Time
	Duration float64
}

func NewAssociation() *Association {
	return &Association{OpenedAt: time.Now()}
}

func (a *Association) Close() {
	a.Duration = time.Since(a.OpenedAt).Seconds()
}

type InstrumentS1AP interface {
	SaveMessages(m *Message)
	SaveAssociations(a *Association)
	SaveAuthVector(result string)
	SetENBs(n int)
}
