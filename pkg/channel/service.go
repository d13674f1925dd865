package channel

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"github.com/ssargent/framewire/pkg/telem"
)

var (
	channelPrefix = []byte("channel/")
	counterKey    = []byte("meta/next_key")
)

// Service persists channel definitions in pebble.
type Service struct {
	db    *pebble.DB
	mutex sync.Mutex
	next  Key
}

// OpenService opens (or creates) the channel database at path.
func OpenService(path string) (*Service, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open channel db at %s", path)
	}
	s := &Service{db: db, next: 1}

	value, closer, err := db.Get(counterKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, errors.Wrap(err, "read key counter")
	default:
		s.next = Key(binary.BigEndian.Uint32(value))
		_ = closer.Close()
	}
	return s, nil
}

func channelKey(k Key) []byte {
	b := make([]byte, len(channelPrefix)+4)
	copy(b, channelPrefix)
	binary.BigEndian.PutUint32(b[len(channelPrefix):], uint32(k))
	return b
}

// Create validates and stores ch. A zero key is assigned the next free key; an
// explicit key overwrites any existing definition.
func (s *Service) Create(_ context.Context, ch *Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if ch.Key == 0 {
		ch.Key = s.next
	}
	next := s.next
	if ch.Key >= next {
		next = ch.Key + 1
	}
	if ch.CreatedAt == 0 {
		ch.CreatedAt = telem.Now()
	}

	data, err := json.Marshal(ch)
	if err != nil {
		return errors.Wrap(err, "marshal channel")
	}

	counter := make([]byte, 4)
	binary.BigEndian.PutUint32(counter, uint32(next))

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(channelKey(ch.Key), data, nil); err != nil {
		return err
	}
	if err := batch.Set(counterKey, counter, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "commit channel %d", ch.Key)
	}
	s.next = next
	return nil
}

// Retrieve returns the channel with the given key.
func (s *Service) Retrieve(_ context.Context, key Key) (Channel, error) {
	data, closer, err := s.db.Get(channelKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Channel{}, errors.Wrapf(ErrNotFound, "key %d", key)
	}
	if err != nil {
		return Channel{}, err
	}
	defer closer.Close()

	var ch Channel
	if err := json.Unmarshal(data, &ch); err != nil {
		return Channel{}, errors.Wrapf(err, "decode channel %d", key)
	}
	return ch, nil
}

// RetrieveMany implements Retriever. The result is in the order of keys.
func (s *Service) RetrieveMany(ctx context.Context, keys Keys) ([]Channel, error) {
	out := make([]Channel, 0, len(keys))
	for _, k := range keys {
		ch, err := s.Retrieve(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// List returns every channel in ascending key order.
func (s *Service) List(_ context.Context) ([]Channel, error) {
	upper := make([]byte, len(channelPrefix))
	copy(upper, channelPrefix)
	upper[len(upper)-1]++

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: channelPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Channel
	for iter.First(); iter.Valid(); iter.Next() {
		var ch Channel
		if err := json.Unmarshal(iter.Value(), &ch); err != nil {
			return nil, errors.Wrapf(err, "decode channel at %x", iter.Key())
		}
		out = append(out, ch)
	}
	return out, iter.Error()
}

// Delete removes the channel with the given key. Deleting an unknown key is not an error.
func (s *Service) Delete(_ context.Context, key Key) error {
	return s.db.Delete(channelKey(key), pebble.Sync)
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}
