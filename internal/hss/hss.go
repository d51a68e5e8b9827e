package hss

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/free5gc/util/milenage"
	"github.com/free5gc/util/ueauth"
	"go.uber.org/zap"

	"mme/pkg/s1ap"
)

var (
	ErrNotFound      = errors.New("subscriber not found")
	ErrInvalidRecord = errors.New("invalid subscriber record")
)

// FC value of the KASME derivation, TS 33.401 A.2.
const fcKASME = "10"

const maxSQN = 1<<48 - 1

// Gateway hands out authentication vectors for a subscriber.
type Gateway interface {
	Lookup(ctx context.Context, imsi uint64) (*Vector, error)
}

// Vector is an EPS authentication vector.
type Vector struct {
	RAND  [16]byte
	XRES  []byte
	AUTN  [16]byte
	KASME [32]byte
}

// Store keeps subscriber credentials. Acquire returns the subscriber with
// the SQN to use for the next vector and advances the stored SQN, or
// ErrNotFound.
type Store interface {
	Acquire(ctx context.Context, imsi uint64) (Subscriber, error)
}

type Option func(*HSS)

// WithRand replaces the source of RAND challenges.
func WithRand(r io.Reader) Option {
	return func(h *HSS) {
		h.rand = r
	}
}

// HSS generates Milenage vectors for subscribers held in a Store.
type HSS struct {
	store Store
	snID  [3]byte
	rand  io.Reader
	log   *zap.SugaredLogger
}

func New(store Store, servingNetwork s1ap.PLMN, logger *zap.Logger, opts ...Option) (*HSS, error) {
	snID, err := servingNetwork.Octets()
	if err != nil {
		return nil, fmt.Errorf("serving network: %w", err)
	}
	h := &HSS{
		store: store,
		snID:  snID,
		rand:  rand.Reader,
		log:   logger.Sugar(),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

func (h *HSS) Lookup(ctx context.Context, imsi uint64) (*Vector, error) {
	sub, err := h.store.Acquire(ctx, imsi)
	if err != nil {
		return nil, err
	}

	v := &Vector{}
	if _, err := io.ReadFull(h.rand, v.RAND[:]); err != nil {
		return nil, fmt.Errorf("generate RAND: %w", err)
	}
	if err := h.generate(sub, v); err != nil {
		return nil, fmt.Errorf("IMSI %015d: %w", imsi, err)
	}
	h.log.Debugf("vector for IMSI %015d, SQN %d", imsi, sub.SQN)
	return v, nil
}

func (h *HSS) generate(sub Subscriber, v *Vector) error {
	var sqnBuf [8]byte
	binary.BigEndian.PutUint64(sqnBuf[:], sub.SQN&maxSQN)
	sqn := sqnBuf[2:]

	macA, macS := make([]byte, 8), make([]byte, 8)
	if err := milenage.F1(sub.OPc, sub.K, v.RAND[:], sqn, sub.AMF, macA, macS); err != nil {
		return fmt.Errorf("milenage f1: %w", err)
	}

	res := make([]byte, 8)
	ck, ik := make([]byte, 16), make([]byte, 16)
	ak, akStar := make([]byte, 6), make([]byte, 6)
	if err := milenage.F2345(sub.OPc, sub.K, v.RAND[:], res, ck, ik, ak, akStar); err != nil {
		return fmt.Errorf("milenage f2345: %w", err)
	}

	sqnXorAK := make([]byte, 6)
	for i := range sqnXorAK {
		sqnXorAK[i] = sqn[i] ^ ak[i]
	}
	copy(v.AUTN[:6], sqnXorAK)
	copy(v.AUTN[6:8], sub.AMF)
	copy(v.AUTN[8:], macA)
	v.XRES = res

	kasme, err := ueauth.GetKDFValue(append(ck, ik...), fcKASME,
		h.snID[:], ueauth.KDFLen(h.snID[:]), sqnXorAK, ueauth.KDFLen(sqnXorAK))
	if err != nil {
		return fmt.Errorf("derive KASME: %w", err)
	}
	copy(v.KASME[:], kasme)
	return nil
}
