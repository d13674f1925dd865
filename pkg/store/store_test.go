package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/telem"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := New(Config{DataDir: dir, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	_, err = s.Open()
	require.NoError(t, err)
	return s
}

func TestStore_WriteLatest(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	first := framer.NewFrame(
		channel.Keys{1, 2},
		[]telem.Series{telem.NewSeriesV[int64](1, 2), telem.NewStringsV("idle")},
	)
	size, err := s.Write(first)
	require.NoError(t, err)
	assert.Positive(t, size)

	second := framer.UnaryFrame(1, telem.NewSeriesV[int64](7))
	_, err = s.Write(second)
	require.NoError(t, err)

	latest, err := s.Latest(1)
	require.NoError(t, err)
	assert.Equal(t, second.Series[0], latest)

	latest, err = s.Latest(2)
	require.NoError(t, err)
	assert.Equal(t, telem.NewStringsV("idle"), latest)

	_, err = s.Latest(3)
	assert.ErrorIs(t, err, ErrNotFound)

	frame, err := s.LatestFrame(channel.Keys{3, 2, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, channel.Keys{2, 1}, frame.Keys)

	stats := s.Stats()
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, int64(3), stats.Records)
	assert.Equal(t, size+int64(NewRecord(1, second.Series[0]).Size()), stats.DataSize)
}

func TestStore_ReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	for i := 0; i < 10; i++ {
		_, err := s.Write(framer.UnaryFrame(channel.Key(i%3), telem.NewSeriesV[int32](int32(i))))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s = openTestStore(t, dir)
	defer s.Close()

	assert.Equal(t, int64(10), s.Stats().Records)
	latest, err := s.Latest(0)
	require.NoError(t, err)
	values, err := telem.UnmarshalSeries[int32](latest)
	require.NoError(t, err)
	assert.Equal(t, []int32{9}, values)
}

func TestStore_RecoversTornTail(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	_, err := s.Write(framer.UnaryFrame(1, testSeries()))
	require.NoError(t, err)
	size := s.Stats().DataSize
	require.NoError(t, s.Close())

	f, err := os.OpenFile(filepath.Join(dir, dataFileName), os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	_, err = f.Write(NewRecord(2, testSeries()).Encode()[:20])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = New(Config{DataDir: dir})
	require.NoError(t, err)
	result, err := s.Open()
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(1), result.RecordsValidated)
	assert.Equal(t, int64(1), result.RecordsTruncated)
	assert.Equal(t, size, result.FileSizeAfter)
	assert.Equal(t, size+20, result.FileSizeBefore)

	_, err = s.Write(framer.UnaryFrame(2, telem.NewSeriesV[uint8](1)))
	require.NoError(t, err)
	_, err = s.Latest(2)
	assert.NoError(t, err, "writes after recovery land on a clean boundary")
}

func TestStore_RecoversCorruptFirstRecord(t *testing.T) {
	dir := t.TempDir()
	data := NewRecord(1, testSeries()).Encode()
	data[RecordHeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataFileName), data, 0600))

	s, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	result, err := s.Open()
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(0), result.FileSizeAfter)
	assert.Equal(t, 0, s.Stats().Channels)
}

func TestStore_Iterate(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	for i := 0; i < 4; i++ {
		_, err := s.Write(framer.UnaryFrame(channel.Key(i), telem.NewSeriesV[uint16](uint16(i))))
		require.NoError(t, err)
	}

	var keys channel.Keys
	require.NoError(t, s.Iterate(func(r *Record) error {
		keys = append(keys, r.Key)
		return nil
	}))
	assert.Equal(t, channel.Keys{0, 1, 2, 3}, keys)

	stop := errors.New("stop")
	count := 0
	err := s.Iterate(func(*Record) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Write(framer.UnaryFrame(1, testSeries()))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Latest(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.LatestFrame(channel.Keys{1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Iterate(func(*Record) error { return nil }), ErrClosed)
	assert.ErrorIs(t, s.Sync(), ErrClosed)
	assert.Equal(t, Stats{}, s.Stats())
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, err := New(Config{DataDir: t.TempDir(), FsyncInterval: 50e6})
	require.NoError(t, err)
	_, err = s.Open()
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(key channel.Key) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := s.Write(framer.UnaryFrame(key, telem.NewSeriesV[int64](int64(i))))
				assert.NoError(t, err)
				_, err = s.Latest(key)
				assert.NoError(t, err)
			}
		}(channel.Key(w))
	}
	wg.Wait()

	require.NoError(t, s.Sync())
	assert.Equal(t, int64(100), s.Stats().Records)
	assert.Equal(t, channel.Keys{0, 1, 2, 3}, s.index.Keys())
}
