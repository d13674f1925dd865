package envelope

import (
	"context"

	"github.com/ssargent/framewire/pkg/framer"
)

// StreamerRequestMessage reconfigures a streamer.
type StreamerRequestMessage = framer.Message[framer.StreamerRequest]

// StreamerResponseMessage carries frames to a streamer.
type StreamerResponseMessage = framer.Message[framer.StreamerResponse]

// StreamerCodec encodes the server to client subscription stream. Requests always use
// the fallback; responses holding a non-empty frame use the compact format.
type StreamerCodec struct{ *base }

// NewStreamerCodec creates a streamer codec with its own frame codec.
func NewStreamerCodec(opts ...Option) *StreamerCodec {
	return &StreamerCodec{base: newBase(opts)}
}

// EncodeRequest encodes a streamer request and updates the frame codec to its keys.
func (c *StreamerCodec) EncodeRequest(ctx context.Context, msg StreamerRequestMessage) ([]byte, error) {
	if err := c.updateFromRetriever(ctx, msg.Payload.Keys); err != nil {
		return nil, err
	}
	return c.encodeFallback(msg)
}

// DecodeRequest decodes a streamer request and updates the frame codec to its keys.
func (c *StreamerCodec) DecodeRequest(ctx context.Context, data []byte) (StreamerRequestMessage, error) {
	var msg StreamerRequestMessage
	if len(data) == 0 {
		return msg, ErrEmptyMessage
	}
	if err := c.decodeFallback(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == framer.MessageClose {
		return msg, nil
	}
	return msg, c.updateFromRetriever(ctx, msg.Payload.Keys)
}

// EncodeResponse encodes a response, using the compact format when it carries data.
func (c *StreamerCodec) EncodeResponse(msg StreamerResponseMessage) ([]byte, error) {
	if msg.Type == framer.MessageData && !msg.Payload.Frame.Empty() {
		return c.encodeFrame(msg.Payload.Frame)
	}
	return c.encodeFallback(msg)
}

// DecodeResponse decodes a response produced by EncodeResponse.
func (c *StreamerCodec) DecodeResponse(data []byte) (StreamerResponseMessage, error) {
	var msg StreamerResponseMessage
	if len(data) == 0 {
		return msg, ErrEmptyMessage
	}
	if data[0] == HighPerfSentinel {
		frame, err := c.decodeFrame(data)
		if err != nil {
			return msg, err
		}
		msg.Type = framer.MessageData
		msg.Payload.Frame = frame
		return msg, nil
	}
	return msg, c.decodeFallback(data, &msg)
}
