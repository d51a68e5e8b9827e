package hss

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mme/pkg/s1ap"
)

// 3GPP TS 35.208 test set 1
const (
	testK    = "465b5ce8b199b49faa5f0a2ee238a6bc"
	testOP   = "cdc202d5123e20f62b6d676ac72cb318"
	testOPc  = "cd63cb71954a9f4e48a5994e37a02baf"
	testRAND = "23553cbe9637a89d218ae64dae47bf35"
	testSQN  = 0xff9bb4d0b607
	testAMF  = "b9b9"
	testRES  = "a54211d5e3ba50bf"
	testCK   = "b40ba9a3c58b2a05bbf0d987b21bf8cb"
	testIK   = "f769bcd751044604127672711c6d3441"
	testAUTN = "55f328b43577b9b94a9ffac354dfafb3"
)

const testIMSI = 1010100000001

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func testSubscriber(t *testing.T) Subscriber {
	return Subscriber{
		IMSI: testIMSI,
		K:    unhex(t, testK),
		OPc:  unhex(t, testOPc),
		AMF:  unhex(t, testAMF),
		SQN:  testSQN,
	}
}

func newTestHSS(t *testing.T, store Store) *HSS {
	rnd := bytes.Repeat(unhex(t, testRAND), 4)
	h, err := New(store, s1ap.PLMN{MCC: "001", MNC: "01"}, zaptest.NewLogger(t), WithRand(bytes.NewReader(rnd)))
	require.NoError(t, err)
	return h
}

func TestLookupMilenage(t *testing.T) {
	store, err := NewMemoryStore(testSubscriber(t))
	require.NoError(t, err)
	h := newTestHSS(t, store)

	v, err := h.Lookup(context.Background(), testIMSI)
	require.NoError(t, err)

	assert.Equal(t, unhex(t, testRAND), v.RAND[:])
	assert.Equal(t, unhex(t, testRES), v.XRES)
	assert.Equal(t, unhex(t, testAUTN), v.AUTN[:])

	mac := hmac.New(sha256.New, append(unhex(t, testCK), unhex(t, testIK)...))
	mac.Write([]byte{0x10, 0x00, 0xf1, 0x10, 0x00, 0x03})
	mac.Write(unhex(t, testAUTN)[:6])
	mac.Write([]byte{0x00, 0x06})
	assert.Equal(t, mac.Sum(nil), v.KASME[:])
}

func TestLookupAdvancesSQN(t *testing.T) {
	store, err := NewMemoryStore(testSubscriber(t))
	require.NoError(t, err)
	h := newTestHSS(t, store)

	first, err := h.Lookup(context.Background(), testIMSI)
	require.NoError(t, err)
	second, err := h.Lookup(context.Background(), testIMSI)
	require.NoError(t, err)

	assert.Equal(t, first.RAND, second.RAND)
	assert.Equal(t, first.XRES, second.XRES)
	assert.NotEqual(t, first.AUTN, second.AUTN)
	assert.Equal(t, first.AUTN[6:8], second.AUTN[6:8])
	// SQN ...607 becomes ...608, the last SQN^AK octet flips 0x0f
	assert.Equal(t, first.AUTN[5]^0x0f, second.AUTN[5])
}

func TestLookupNotFound(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	h := newTestHSS(t, store)

	_, err = h.Lookup(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRandFailure(t *testing.T) {
	store, err := NewMemoryStore(testSubscriber(t))
	require.NoError(t, err)
	h, err := New(store, s1ap.PLMN{MCC: "001", MNC: "01"}, zaptest.NewLogger(t), WithRand(bytes.NewReader(nil)))
	require.NoError(t, err)

	_, err = h.Lookup(context.Background(), testIMSI)
	assert.Error(t, err)
}

func TestNewRejectsBadServingNetwork(t *testing.T) {
	_, err := New(&MemoryStore{}, s1ap.PLMN{MCC: "1", MNC: "01"}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, s1ap.ErrInvalidValue)
}

func TestSubscriberConfig(t *testing.T) {
	sub, err := SubscriberConfig{IMSI: "001010100000001", K: testK, OP: testOP, AMF: testAMF, SQN: "ff9bb4d0b607"}.Subscriber()
	require.NoError(t, err)
	assert.Equal(t, testSubscriber(t), sub)

	sub, err = SubscriberConfig{IMSI: "001010100000001", K: testK, OPc: testOPc}.Subscriber()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00}, sub.AMF)
	assert.Zero(t, sub.SQN)

	bad := map[string]SubscriberConfig{
		"imsi":    {IMSI: "00101x", K: testK, OPc: testOPc},
		"short k": {IMSI: "1", K: "00", OPc: testOPc},
		"no opc":  {IMSI: "1", K: testK},
		"sqn":     {IMSI: "1", K: testK, OPc: testOPc, SQN: "1000000000000"},
	}
	for name, c := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := c.Subscriber()
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	_, err := NewMemoryStore(Subscriber{IMSI: 1, K: []byte{1}})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestRedisRecord(t *testing.T) {
	sub := testSubscriber(t)
	fields := make(map[string]string)
	for k, v := range encodeRecord(sub) {
		fields[k] = v.(string)
	}
	assert.Equal(t, "465b5ce8b199b49faa5f0a2ee238a6bc", fields[fieldK])

	got, err := decodeRecord(testIMSI, fields)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	fields[fieldOPc] = "zz"
	fields[fieldSQN] = "-1"
	_, err = decodeRecord(testIMSI, fields)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.ErrorContains(t, err, fieldOPc)
	assert.ErrorContains(t, err, fieldSQN)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MME_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MME_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	db := redis.NewClient(&redis.Options{Addr: addr})
	defer db.Close()

	store := NewRedisStore(db, "mme-test:")
	require.NoError(t, store.Put(ctx, testSubscriber(t)))
	defer store.Delete(ctx, testIMSI)

	h := newTestHSS(t, store)
	v, err := h.Lookup(ctx, testIMSI)
	require.NoError(t, err)
	assert.Equal(t, unhex(t, testAUTN), v.AUTN[:])

	next, err := store.Acquire(ctx, testIMSI)
	require.NoError(t, err)
	assert.Equal(t, uint64(testSQN+1), next.SQN)

	_, err = store.Acquire(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := db.Exists(ctx, store.key(2)).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "lookup of a missing subscriber must not create a record")

	require.NoError(t, store.Delete(ctx, testIMSI))
	_, err = store.Acquire(ctx, testIMSI)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err = db.Exists(ctx, store.key(testIMSI)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
