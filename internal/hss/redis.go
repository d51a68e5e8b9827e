package hss

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Hash fields of a subscriber record.
const (
	fieldK   = "k"
	fieldOPc = "opc"
	fieldAMF = "amf"
	fieldSQN = "sqn"
)

// RedisStore keeps one hash per subscriber under prefix + 15 digit IMSI.
type RedisStore struct {
	db     *redis.Client
	prefix string
}

func NewRedisStore(db *redis.Client, prefix string) *RedisStore {
	return &RedisStore{db: db, prefix: prefix}
}

func (s *RedisStore) key(imsi uint64) string {
	return fmt.Sprintf("%s%015d", s.prefix, imsi)
}

// acquireScript advances the SQN of an existing record and returns the
// record after the increment. A missing record is left absent.
var acquireScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
return redis.call("HGETALL", KEYS[1])
`)

func (s *RedisStore) Acquire(ctx context.Context, imsi uint64) (Subscriber, error) {
	key := s.key(imsi)
	flat, err := acquireScript.Run(ctx, s.db, []string{key}, fieldSQN).StringSlice()
	if errors.Is(err, redis.Nil) {
		return Subscriber{}, fmt.Errorf("%w: IMSI %015d", ErrNotFound, imsi)
	}
	if err != nil {
		return Subscriber{}, fmt.Errorf("acquire %s: %w", key, err)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}

	sub, err := decodeRecord(imsi, fields)
	if err != nil {
		return Subscriber{}, fmt.Errorf("%s: %w", key, err)
	}
	// the record holds the next SQN, this vector uses the one before
	sub.SQN = (sub.SQN - 1) & maxSQN
	return sub, nil
}

// Put provisions or overwrites a subscriber.
func (s *RedisStore) Put(ctx context.Context, sub Subscriber) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.db.HSet(ctx, s.key(sub.IMSI), encodeRecord(sub)).Err()
}

// Delete removes a subscriber, ErrNotFound if there was none.
func (s *RedisStore) Delete(ctx context.Context, imsi uint64) error {
	n, err := s.db.Del(ctx, s.key(imsi)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: IMSI %015d", ErrNotFound, imsi)
	}
	return nil
}

func encodeRecord(sub Subscriber) map[string]interface{} {
	return map[string]interface{}{
		fieldK:   hex.EncodeToString(sub.K),
		fieldOPc: hex.EncodeToString(sub.OPc),
		fieldAMF: hex.EncodeToString(sub.AMF),
		fieldSQN: strconv.FormatUint(sub.SQN, 10),
	}
}

func decodeRecord(imsi uint64, fields map[string]string) (Subscriber, error) {
	sub := Subscriber{IMSI: imsi}
	var errs []error
	hexField := func(name string) []byte {
		b, err := hex.DecodeString(fields[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
		return b
	}
	sub.K = hexField(fieldK)
	sub.OPc = hexField(fieldOPc)
	sub.AMF = hexField(fieldAMF)
	if v, ok := fields[fieldSQN]; ok {
		sqn, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", fieldSQN, err))
		}
		sub.SQN = sqn
	}
	if err := errors.Join(errs...); err != nil {
		return Subscriber{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return sub, sub.Validate()
}
