package hss

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/free5gc/util/milenage"
)

// Subscriber holds the long term credentials of one USIM.
type Subscriber struct {
	IMSI uint64
	K    []byte
	OPc  []byte
	AMF  []byte
	SQN  uint64
}

func (s Subscriber) Validate() error {
	if len(s.K) != 16 {
		return fmt.Errorf("%w: K is %d bytes", ErrInvalidRecord, len(s.K))
	}
	if len(s.OPc) != 16 {
		return fmt.Errorf("%w: OPc is %d bytes", ErrInvalidRecord, len(s.OPc))
	}
	if len(s.AMF) != 2 {
		return fmt.Errorf("%w: AMF is %d bytes", ErrInvalidRecord, len(s.AMF))
	}
	if s.SQN > maxSQN {
		return fmt.Errorf("%w: SQN %#x exceeds 48 bits", ErrInvalidRecord, s.SQN)
	}
	return nil
}

// SubscriberConfig is the textual form used in configuration files. Either
// OPc or OP is given, OPc is derived from OP and K otherwise.
type SubscriberConfig struct {
	IMSI string `mapstructure:"imsi"`
	K    string `mapstructure:"k"`
	OP   string `mapstructure:"op"`
	OPc  string `mapstructure:"opc"`
	AMF  string `mapstructure:"amf"`
	SQN  string `mapstructure:"sqn"`
}

func (c SubscriberConfig) Subscriber() (Subscriber, error) {
	var s Subscriber
	var err error
	if s.IMSI, err = strconv.ParseUint(c.IMSI, 10, 64); err != nil || len(c.IMSI) > 15 {
		return s, fmt.Errorf("%w: IMSI %q", ErrInvalidRecord, c.IMSI)
	}
	if s.K, err = hex.DecodeString(c.K); err != nil {
		return s, fmt.Errorf("%w: K: %v", ErrInvalidRecord, err)
	}
	switch {
	case c.OPc != "":
		if s.OPc, err = hex.DecodeString(c.OPc); err != nil {
			return s, fmt.Errorf("%w: OPc: %v", ErrInvalidRecord, err)
		}
	case c.OP != "":
		op, err := hex.DecodeString(c.OP)
		if err != nil || len(op) != 16 || len(s.K) != 16 {
			return s, fmt.Errorf("%w: OP %q", ErrInvalidRecord, c.OP)
		}
		if s.OPc, err = milenage.GenerateOPC(s.K, op); err != nil {
			return s, fmt.Errorf("%w: derive OPc: %v", ErrInvalidRecord, err)
		}
	}
	amf := c.AMF
	if amf == "" {
		amf = "8000"
	}
	if s.AMF, err = hex.DecodeString(amf); err != nil {
		return s, fmt.Errorf("%w: AMF: %v", ErrInvalidRecord, err)
	}
	if c.SQN != "" {
		if s.SQN, err = strconv.ParseUint(c.SQN, 16, 64); err != nil {
			return s, fmt.Errorf("%w: SQN: %v", ErrInvalidRecord, err)
		}
	}
	return s, s.Validate()
}

// MemoryStore keeps subscribers in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[uint64]*Subscriber
}

func NewMemoryStore(subs ...Subscriber) (*MemoryStore, error) {
	m := &MemoryStore{subs: make(map[uint64]*Subscriber, len(subs))}
	for _, s := range subs {
		if err := m.Add(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MemoryStore) Add(s Subscriber) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("IMSI %015d: %w", s.IMSI, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.IMSI] = &s
	return nil
}

func (m *MemoryStore) Acquire(_ context.Context, imsi uint64) (Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[imsi]
	if !ok {
		return Subscriber{}, fmt.Errorf("%w: IMSI %015d", ErrNotFound, imsi)
	}
	out := *s
	s.SQN = (s.SQN + 1) & maxSQN
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
