package store

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/telem"
)

// RecordHeaderSize is the fixed prefix of every record:
// CRC32(4) Key(4) DataTypeSize(1) DataSize(4) Start(8) End(8) Alignment(8) Written(8).
const RecordHeaderSize = 45

const maxDataTypeSize = 255

// Record is a single series persisted in the log.
type Record struct {
	CRC32   uint32
	Key     channel.Key
	Written telem.TimeStamp
	Series  telem.Series
}

// NewRecord creates a record for s stamped with the current time.
func NewRecord(key channel.Key, s telem.Series) *Record {
	if len(s.DataType) > maxDataTypeSize {
		panic("data type name too long")
	}
	if len(s.Data) > int(^uint32(0)) {
		panic("series too large")
	}
	return &Record{Key: key, Written: telem.Now(), Series: s}
}

// Size returns the encoded size of the record.
func (r *Record) Size() int {
	return RecordHeaderSize + len(r.Series.DataType) + len(r.Series.Data)
}

// Encode serializes the record and fills in its checksum.
// Format: [CRC32][Key][DataTypeSize][DataSize][Start][End][Alignment][Written][DataType][Data]
func (r *Record) Encode() []byte {
	buf := r.marshal()
	r.CRC32 = crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	return buf
}

// marshal encodes every field except the checksum.
func (r *Record) marshal() []byte {
	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Key))
	buf[8] = uint8(len(r.Series.DataType))
	binary.LittleEndian.PutUint32(buf[9:], uint32(len(r.Series.Data)))
	binary.LittleEndian.PutUint64(buf[13:], uint64(r.Series.TimeRange.Start))
	binary.LittleEndian.PutUint64(buf[21:], uint64(r.Series.TimeRange.End))
	binary.LittleEndian.PutUint64(buf[29:], uint64(r.Series.Alignment))
	binary.LittleEndian.PutUint64(buf[37:], uint64(r.Written))
	n := copy(buf[RecordHeaderSize:], r.Series.DataType)
	copy(buf[RecordHeaderSize+n:], r.Series.Data)
	return buf
}

// bodySize returns the number of bytes following the header.
func bodySize(header []byte) int {
	return int(header[8]) + int(binary.LittleEndian.Uint32(header[9:13]))
}

// DecodeRecord deserializes a record. It does not verify the checksum; call Validate.
func DecodeRecord(data []byte) (*Record, error) {
	if len(data) < RecordHeaderSize {
		return nil, errors.New("data too short for record header")
	}
	dtSize := int(data[8])
	dataSize := int(binary.LittleEndian.Uint32(data[9:13]))
	if len(data) < RecordHeaderSize+dtSize+dataSize {
		return nil, errors.Newf("data too short for record body: %d < %d", len(data), RecordHeaderSize+dtSize+dataSize)
	}

	body := data[RecordHeaderSize:]
	return &Record{
		CRC32:   binary.LittleEndian.Uint32(data[0:4]),
		Key:     channel.Key(binary.LittleEndian.Uint32(data[4:8])),
		Written: telem.TimeStamp(binary.LittleEndian.Uint64(data[37:45])),
		Series: telem.Series{
			DataType: telem.DataType(body[:dtSize]),
			Data:     body[dtSize : dtSize+dataSize],
			TimeRange: telem.TimeRange{
				Start: telem.TimeStamp(binary.LittleEndian.Uint64(data[13:21])),
				End:   telem.TimeStamp(binary.LittleEndian.Uint64(data[21:29])),
			},
			Alignment: telem.Alignment(binary.LittleEndian.Uint64(data[29:37])),
		},
	}, nil
}

// Validate recomputes the checksum of the record.
func (r *Record) Validate() error {
	crc := r.checksum()
	if r.CRC32 != crc {
		return errors.Wrapf(ErrCorruption, "CRC32 mismatch: %d != %d", r.CRC32, crc)
	}
	return nil
}

func (r *Record) checksum() uint32 {
	return crc32.ChecksumIEEE(r.marshal()[4:])
}
