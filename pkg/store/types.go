package store

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/telem"
)

// IndexEntry locates the most recent record of a channel in the log.
type IndexEntry struct {
	Offset    int64           // Byte offset within the file
	Size      uint32          // Size of the record in bytes
	Written   telem.TimeStamp // When the record was appended
	TimeRange telem.TimeRange
	Alignment telem.Alignment
	Records   int64 // Records written for the channel
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the active data file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
	BufferSize    int           // Write buffer size
}

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath    string // Path to the data file
	StartOffset int64  // Offset to start reading from
}

// Config holds configuration for the series store
type Config struct {
	DataDir       string        // Directory for data files
	FsyncInterval time.Duration // Fsync interval for durability
	BufferSize    int           // Write buffer size, defaults to 64KB
	Logger        *zap.Logger
}

// RecoveryResult describes what Open found while validating the log.
type RecoveryResult struct {
	RecordsValidated int64         `json:"records_validated"`
	RecordsTruncated int64         `json:"records_truncated"`
	FileSizeBefore   int64         `json:"file_size_before"`
	FileSizeAfter    int64         `json:"file_size_after"`
	RecoveryTime     time.Duration `json:"recovery_time"`
}

// Stats holds statistics about the store
type Stats struct {
	Channels int   `json:"channels"`
	Records  int64 `json:"records"`
	DataSize int64 `json:"data_size"`
}

// RecordIterator provides streaming access to records
type RecordIterator interface {
	Next() bool
	Record() *Record
	Err() error
	Close() error
}

var (
	ErrNotFound   = errors.New("no series stored for channel")
	ErrCorruption = errors.New("data corruption detected")
	ErrClosed     = errors.New("store is not open")
)
