package store

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/ssargent/framewire/pkg/channel"
)

// SeriesIndex tracks the most recent record of every channel
type SeriesIndex struct {
	entries map[channel.Key]*IndexEntry
	records int64
	mutex   sync.RWMutex
}

// NewSeriesIndex creates an empty index
func NewSeriesIndex() *SeriesIndex {
	return &SeriesIndex{entries: make(map[channel.Key]*IndexEntry)}
}

// Put records that r was appended at offset, replacing any older entry for its key
func (idx *SeriesIndex) Put(r *Record, offset int64) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()
	idx.put(r, offset)
}

func (idx *SeriesIndex) put(r *Record, offset int64) {
	var count int64
	if prev, ok := idx.entries[r.Key]; ok {
		count = prev.Records
	}
	idx.entries[r.Key] = &IndexEntry{
		Offset:    offset,
		Size:      uint32(r.Size()),
		Written:   r.Written,
		TimeRange: r.Series.TimeRange,
		Alignment: r.Series.Alignment,
		Records:   count + 1,
	}
	idx.records++
}

// Get returns the entry of the latest record for key
func (idx *SeriesIndex) Get(key channel.Key) (*IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	entry, ok := idx.entries[key]
	return entry, ok
}

// Size returns the number of channels with at least one record
func (idx *SeriesIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return len(idx.entries)
}

// Records returns the number of records indexed
func (idx *SeriesIndex) Records() int64 {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.records
}

// Keys returns the indexed channels in ascending order
func (idx *SeriesIndex) Keys() channel.Keys {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	keys := channel.Keys(lo.Keys(idx.entries))
	slices.Sort(keys)
	return keys
}

// BuildFromLog scans a log file and populates the index
func (idx *SeriesIndex) BuildFromLog(reader *LogReader) error {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[channel.Key]*IndexEntry)
	idx.records = 0

	if err := reader.Seek(0); err != nil {
		return err
	}

	iterator := reader.Iterator()
	defer iterator.Close()

	for {
		offset := reader.Offset()
		if !iterator.Next() {
			break
		}
		idx.put(iterator.Record(), offset)
	}
	return errors.Wrap(iterator.Err(), "build index")
}
