package store

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// LogReader provides sequential and random access to records in a log file
type LogReader struct {
	file   *os.File
	reader *bufio.Reader
	offset int64
	config LogReaderConfig
}

// NewLogReader creates a new log reader for the specified file
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}

	r := &LogReader{file: file, config: config}
	if err := r.Seek(config.StartOffset); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// ReadNext reads the record at the current offset. It returns io.EOF at a clean end
// of file and ErrCorruption for a torn or damaged record.
func (r *LogReader) ReadNext() (*Record, error) {
	header := make([]byte, RecordHeaderSize)
	n, err := io.ReadFull(r.reader, header)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrCorruption, "torn header at offset %d (%d bytes)", r.offset, n)
		}
		return nil, err
	}

	size := RecordHeaderSize + bodySize(header)
	if err := r.checkBounds(r.offset, size); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	copy(data, header)
	if _, err := io.ReadFull(r.reader, data[RecordHeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrCorruption, "torn record at offset %d", r.offset)
		}
		return nil, err
	}

	record, err := DecodeRecord(data)
	if err != nil {
		return nil, errors.Mark(err, ErrCorruption)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	r.offset += int64(len(data))
	return record, nil
}

// ReadAt reads the record starting at offset without moving the sequential cursor
func (r *LogReader) ReadAt(offset int64) (*Record, error) {
	header := make([]byte, RecordHeaderSize)
	if _, err := r.file.ReadAt(header, offset); err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrCorruption, "no record header at offset %d", offset)
		}
		return nil, err
	}

	size := RecordHeaderSize + bodySize(header)
	if err := r.checkBounds(offset, size); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	copy(data, header)
	if _, err := r.file.ReadAt(data[RecordHeaderSize:], offset+RecordHeaderSize); err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrCorruption, "short record at offset %d", offset)
		}
		return nil, err
	}

	record, err := DecodeRecord(data)
	if err != nil {
		return nil, errors.Mark(err, ErrCorruption)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// checkBounds rejects a record whose declared size runs past the end of the file, so
// a damaged header cannot trigger a huge allocation.
func (r *LogReader) checkBounds(offset int64, size int) error {
	info, err := r.file.Stat()
	if err != nil {
		return err
	}
	if offset+int64(size) > info.Size() {
		return errors.Wrapf(ErrCorruption, "record at offset %d overruns file (%d > %d)", offset, offset+int64(size), info.Size())
	}
	return nil
}

// Seek sets the read offset
func (r *LogReader) Seek(offset int64) error {
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.reader = bufio.NewReader(r.file)
	r.offset = offset
	return nil
}

// Offset returns the offset of the next record
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator for records
func (r *LogReader) Iterator() RecordIterator {
	return &logRecordIterator{reader: r}
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}

type logRecordIterator struct {
	reader *LogReader
	record *Record
	err    error
}

func (it *logRecordIterator) Next() bool {
	it.record, it.err = it.reader.ReadNext()
	return it.err == nil
}

func (it *logRecordIterator) Record() *Record {
	return it.record
}

// Err returns the error that stopped iteration, or nil at a clean end of file.
func (it *logRecordIterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

// Close leaves the underlying reader open; it is owned by the caller.
func (it *logRecordIterator) Close() error {
	return nil
}
