// Package channel defines channel identity and metadata, and persists channel
// definitions so writers and streamers can resolve keys to data types.
package channel

import (
	"context"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/ssargent/framewire/pkg/telem"
)

// Key uniquely identifies a channel.
type Key uint32

func (k Key) String() string { return strconv.FormatUint(uint64(k), 10) }

// ParseKey parses the decimal representation of a key.
func ParseKey(s string) (Key, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid channel key %q", s)
	}
	return Key(v), nil
}

// Keys is an ordered list of channel keys.
type Keys []Key

// Contains reports whether k is in keys.
func (keys Keys) Contains(k Key) bool { return lo.Contains(keys, k) }

// Unique returns keys with duplicates removed, preserving first occurrence order.
func (keys Keys) Unique() Keys { return lo.Uniq(keys) }

// Sorted returns an ascending copy of keys.
func (keys Keys) Sorted() Keys {
	out := slices.Clone(keys)
	slices.Sort(out)
	return out
}

// Channel is the metadata of a single channel.
type Channel struct {
	Key       Key             `json:"key" msgpack:"key"`
	Name      string          `json:"name" msgpack:"name"`
	DataType  telem.DataType  `json:"data_type" msgpack:"data_type"`
	CreatedAt telem.TimeStamp `json:"created_at" msgpack:"created_at"`
}

// Validate checks that the channel can be persisted.
func (c Channel) Validate() error {
	if c.Name == "" {
		return errors.Wrap(ErrInvalid, "name is required")
	}
	if !c.DataType.Valid() {
		return errors.Wrapf(ErrInvalid, "unsupported data type %q", c.DataType)
	}
	return nil
}

var (
	// ErrNotFound is returned when a channel key has no definition.
	ErrNotFound = errors.New("channel not found")
	// ErrInvalid is returned when a channel definition fails validation.
	ErrInvalid = errors.New("invalid channel")
)

// Retriever resolves channel keys into their definitions.
type Retriever interface {
	RetrieveMany(ctx context.Context, keys Keys) ([]Channel, error)
}

// KeysOf returns the keys of channels.
func KeysOf(channels []Channel) Keys {
	return lo.Map(channels, func(c Channel, _ int) Key { return c.Key })
}

// DataTypesOf returns the data types of channels in order.
func DataTypesOf(channels []Channel) []telem.DataType {
	return lo.Map(channels, func(c Channel, _ int) telem.DataType { return c.DataType })
}

// DataTypes retrieves the data type of every key, in the order of keys.
func DataTypes(ctx context.Context, r Retriever, keys Keys) ([]telem.DataType, error) {
	channels, err := r.RetrieveMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	return DataTypesOf(channels), nil
}

// StaticRetriever is an in-memory Retriever.
type StaticRetriever map[Key]Channel

// NewStaticRetriever indexes channels by key.
func NewStaticRetriever(channels ...Channel) StaticRetriever {
	return lo.KeyBy(channels, func(c Channel) Key { return c.Key })
}

// RetrieveMany implements Retriever.
func (r StaticRetriever) RetrieveMany(_ context.Context, keys Keys) ([]Channel, error) {
	out := make([]Channel, 0, len(keys))
	for _, k := range keys {
		ch, ok := r[k]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "key %d", k)
		}
		out = append(out, ch)
	}
	return out, nil
}
