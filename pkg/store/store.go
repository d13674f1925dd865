// Package store persists written frames in an append-only, checksummed log and keeps
// the latest series of every channel addressable in memory.
package store

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

const dataFileName = "series.log"

// Store is the series log
type Store struct {
	config   Config
	writer   *LogWriter
	reader   *LogReader
	index    *SeriesIndex
	dataFile string
	logger   *zap.Logger
	mutex    sync.Mutex
	isOpen   bool
}

// New creates a store rooted at config.DataDir. Call Open before use.
func New(config Config) (*Store, error) {
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", config.DataDir)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		config:   config,
		dataFile: filepath.Join(config.DataDir, dataFileName),
		index:    NewSeriesIndex(),
		logger:   logger,
	}, nil
}

// Open validates the log, truncating a damaged tail, and rebuilds the index
func (s *Store) Open() (*RecoveryResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return &RecoveryResult{}, nil
	}

	result, err := s.validateLogFile()
	if err != nil {
		return nil, err
	}
	if result.RecordsTruncated > 0 {
		s.logger.Warn("truncated damaged series log tail",
			zap.String("file", s.dataFile),
			zap.Int64("size_before", result.FileSizeBefore),
			zap.Int64("size_after", result.FileSizeAfter),
		)
	}

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      s.dataFile,
		FsyncInterval: s.config.FsyncInterval,
		BufferSize:    s.config.BufferSize,
	})
	if err != nil {
		return nil, err
	}

	reader, err := NewLogReader(LogReaderConfig{FilePath: s.dataFile})
	if err != nil {
		return nil, multierr.Append(err, writer.Close())
	}

	if err := s.index.BuildFromLog(reader); err != nil {
		return nil, multierr.Combine(err, reader.Close(), writer.Close())
	}

	s.writer, s.reader, s.isOpen = writer, reader, true
	s.logger.Info("series store opened",
		zap.String("file", s.dataFile),
		zap.Int("channels", s.index.Size()),
		zap.Int64("records", s.index.Records()),
	)
	return result, nil
}

// Write appends every series of frame and returns the log size afterwards
func (s *Store) Write(frame framer.Frame) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return 0, ErrClosed
	}

	for i, key := range frame.Keys {
		r := NewRecord(key, frame.Series[i])
		offset, err := s.writer.Append(r)
		if err != nil {
			return 0, errors.Wrapf(err, "write channel %d", key)
		}
		s.index.Put(r, offset)
	}
	return s.writer.Size(), nil
}

// Latest returns the most recently written series of key
func (s *Store) Latest(key channel.Key) (telem.Series, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return telem.Series{}, ErrClosed
	}
	return s.latest(key)
}

func (s *Store) latest(key channel.Key) (telem.Series, error) {
	entry, ok := s.index.Get(key)
	if !ok {
		return telem.Series{}, errors.Wrapf(ErrNotFound, "channel %d", key)
	}
	if err := s.writer.Flush(); err != nil {
		return telem.Series{}, err
	}
	record, err := s.reader.ReadAt(entry.Offset)
	if err != nil {
		return telem.Series{}, errors.Wrapf(err, "read channel %d", key)
	}
	return record.Series, nil
}

// LatestFrame returns the latest series of each key that has been written. Keys
// without data are left out of the frame.
func (s *Store) LatestFrame(keys channel.Keys) (framer.Frame, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var frame framer.Frame
	if !s.isOpen {
		return frame, ErrClosed
	}
	for _, key := range keys.Unique() {
		series, err := s.latest(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return frame, err
		}
		frame = frame.Append(key, series)
	}
	return frame, nil
}

// Iterate calls fn with every record written before the call, in write order.
// Iteration stops at the first error returned by fn.
func (s *Store) Iterate(fn func(*Record) error) error {
	s.mutex.Lock()
	if !s.isOpen {
		s.mutex.Unlock()
		return ErrClosed
	}
	err := s.writer.Flush()
	end := s.writer.Size()
	s.mutex.Unlock()
	if err != nil {
		return err
	}

	reader, err := NewLogReader(LogReaderConfig{FilePath: s.dataFile})
	if err != nil {
		return err
	}
	defer reader.Close()

	it := reader.Iterator()
	defer it.Close()
	for reader.Offset() < end && it.Next() {
		if err := fn(it.Record()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return Stats{}
	}
	return Stats{
		Channels: s.index.Size(),
		Records:  s.index.Records(),
		DataSize: s.writer.Size(),
	}
}

// Sync forces buffered records to disk
func (s *Store) Sync() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.isOpen {
		return ErrClosed
	}
	return s.writer.Sync()
}

// Close flushes and closes the log
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}
	s.isOpen = false
	return multierr.Append(s.writer.Close(), s.reader.Close())
}

// validateLogFile scans the log and truncates it after the last valid record
func (s *Store) validateLogFile() (*RecoveryResult, error) {
	start := time.Now()
	result := &RecoveryResult{}

	info, err := os.Stat(s.dataFile)
	if os.IsNotExist(err) {
		result.RecoveryTime = time.Since(start)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.FileSizeBefore = info.Size()
	result.FileSizeAfter = info.Size()

	reader, err := NewLogReader(LogReaderConfig{FilePath: s.dataFile})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var corrupt bool
	for {
		_, err := reader.ReadNext()
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrCorruption) {
			corrupt = true
			break
		}
		if err != nil {
			return nil, err
		}
		result.RecordsValidated++
	}

	if corrupt {
		lastValid := reader.Offset()
		if err := os.Truncate(s.dataFile, lastValid); err != nil {
			return nil, errors.Wrap(err, "truncate damaged log")
		}
		result.FileSizeAfter = lastValid
		result.RecordsTruncated = 1
	}
	result.RecoveryTime = time.Since(start)
	return result, nil
}
