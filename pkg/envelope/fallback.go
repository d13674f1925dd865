package envelope

import (
	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Fallback is the general purpose codec used for messages that carry no frame data.
type Fallback interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// JSON is the default fallback.
type JSON struct{}

var _ Fallback = JSON{}

func (JSON) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                    { return "json" }

// MsgPack trades readability for smaller control messages.
type MsgPack struct{}

var _ Fallback = MsgPack{}

func (MsgPack) Encode(v any) ([]byte, error)    { return msgpack.Marshal(v) }
func (MsgPack) Decode(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgPack) Name() string                    { return "msgpack" }

// FallbackByName resolves a fallback from its configuration name. An empty name
// selects JSON.
func FallbackByName(name string) (Fallback, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	}
	return nil, errors.Newf("unknown fallback codec %q", name)
}
