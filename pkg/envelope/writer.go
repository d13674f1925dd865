package envelope

import (
	"context"

	"github.com/ssargent/framewire/pkg/framer"
)

// WriterMessage is the envelope exchanged on the write transport.
type WriterMessage = framer.Message[framer.WriterRequest]

// WriterResponseMessage acknowledges a WriterMessage.
type WriterResponseMessage = framer.Message[framer.WriterResponse]

// WriterCodec encodes the client to server write stream. Write commands carry their
// frame in the compact format; everything else uses the fallback.
type WriterCodec struct{ *base }

// NewWriterCodec creates a writer codec with its own frame codec.
func NewWriterCodec(opts ...Option) *WriterCodec {
	return &WriterCodec{base: newBase(opts)}
}

func isWrite(msg WriterMessage) bool {
	return msg.Type == framer.MessageData && msg.Payload.Command == framer.WriterWrite
}

// Encode encodes msg. An open command updates the frame codec from the retriever
// before encoding.
func (c *WriterCodec) Encode(ctx context.Context, msg WriterMessage) ([]byte, error) {
	if isWrite(msg) {
		return c.encodeFrame(msg.Payload.Frame)
	}
	if msg.Type == framer.MessageOpen {
		if err := c.updateFromRetriever(ctx, msg.Payload.Config.Keys); err != nil {
			return nil, err
		}
	}
	return c.encodeFallback(msg)
}

// Decode decodes a message produced by Encode. A decoded open command updates the
// frame codec from the retriever.
func (c *WriterCodec) Decode(ctx context.Context, data []byte) (WriterMessage, error) {
	var msg WriterMessage
	if len(data) == 0 {
		return msg, ErrEmptyMessage
	}
	if data[0] == HighPerfSentinel {
		frame, err := c.decodeFrame(data)
		if err != nil {
			return msg, err
		}
		msg.Type = framer.MessageData
		msg.Payload = framer.WriterRequest{Command: framer.WriterWrite, Frame: frame}
		return msg, nil
	}
	if err := c.decodeFallback(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == framer.MessageOpen {
		if err := c.updateFromRetriever(ctx, msg.Payload.Config.Keys); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

// EncodeResponse encodes a server response. Responses never carry frames.
func (c *WriterCodec) EncodeResponse(msg WriterResponseMessage) ([]byte, error) {
	return c.encodeFallback(msg)
}

// DecodeResponse decodes a server response.
func (c *WriterCodec) DecodeResponse(data []byte) (WriterResponseMessage, error) {
	var msg WriterResponseMessage
	if len(data) == 0 {
		return msg, ErrEmptyMessage
	}
	return msg, c.decodeFallback(data, &msg)
}
