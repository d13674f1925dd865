// Package codec implements the compact binary encoding used to move frames between
// writers, the server and streamers.
//
// # States
//
// A Codec holds a registry of states. Each state is an immutable snapshot of the
// channel keys in use and the data type of each channel. Update registers a new state
// under the next sequence number (starting at 1) and makes it current. Encode always
// uses the current state. Decode uses whichever state matches the sequence number
// carried in the bytes, so frames encoded just before an Update still decode after it.
// Both sides of a connection own an independent Codec and keep them in step by calling
// Update with the same keys and data types.
//
// # Frame Format
//
// All integers are little-endian.
//
//	[flags(1)][seqNum(4)]
//	[length(4)]             iff equal lengths
//	[start(8)][end(8)]      iff equal time ranges and not zero
//	[alignment(8)]          iff equal alignments and not zero
//	per series, ascending channel key:
//	  [key(4)]              iff not all channels present
//	  [length(4)]           iff not equal lengths
//	  [data]
//	  [start(8)][end(8)]    iff not equal time ranges and not zero
//	  [alignment(8)]        iff not equal alignments and not zero
//
// Flag bits, from least significant:
//   - 0: the frame holds exactly the channels of the state, so keys are omitted
//   - 1: every time range is zero
//   - 2: every series shares one time range
//   - 3: every series shares one length
//   - 4: every series shares one alignment
//   - 5: every alignment is zero
//
// A length is a sample count for fixed width types and a byte count for variable
// width types. States holding any variable width channel never share a length.
//
// # Decoding Untrusted Input
//
// Decode only returns an error when the codec is uninitialized. A frame with an
// unknown sequence number decodes to an empty frame. A truncated buffer decodes to
// the series that were read in full before the cut. Callers should treat a frame with
// fewer series than expected as a normal outcome.
//
// # Thread Safety
//
// A Codec is not safe for concurrent use. The envelope package wraps it with a mutex
// for connection handlers.
package codec
