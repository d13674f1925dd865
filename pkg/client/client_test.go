package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/api"
	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/framer"
	"github.com/ssargent/framewire/pkg/relay"
	"github.com/ssargent/framewire/pkg/store"
	"github.com/ssargent/framewire/pkg/telem"
)

const testAPIKey = "client-test-key"

type testServer struct {
	url      string
	channels *channel.Service
	store    *store.Store
}

func startServer(t *testing.T, fallback string) *testServer {
	t.Helper()
	dir := t.TempDir()

	channels, err := channel.OpenService(filepath.Join(dir, "channels"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = channels.Close() })

	st, err := store.New(store.Config{DataDir: filepath.Join(dir, "series")})
	require.NoError(t, err)
	_, err = st.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub()
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server, err := api.NewServer(api.Dependencies{
		Channels: channels,
		Store:    st,
		Relay:    hub,
		Logger:   zap.NewNop(),
	}, api.ServerConfig{APIKey: testAPIKey, Fallback: fallback})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return &testServer{url: ts.URL, channels: channels, store: st}
}

func (s *testServer) create(t *testing.T, name string, dt telem.DataType) channel.Channel {
	t.Helper()
	ch := channel.Channel{Name: name, DataType: dt}
	require.NoError(t, s.channels.Create(context.Background(), &ch))
	return ch
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:9090", "ws://localhost:9090/api/v1/frame/write", false},
		{"https://example.com/", "wss://example.com/api/v1/frame/write", false},
		{"ws://10.0.0.1:80/prefix", "ws://10.0.0.1:80/prefix/api/v1/frame/write", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := endpointURL(tt.base, writePath)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriterStreamer_RoundTrip(t *testing.T) {
	for _, fallback := range []envelope.Fallback{envelope.JSON{}, envelope.MsgPack{}} {
		t.Run(fallback.Name(), func(t *testing.T) {
			srv := startServer(t, fallback.Name())
			ctx := testContext(t)
			temp := srv.create(t, "temp", telem.Float32T)
			notes := srv.create(t, "notes", telem.StringT)
			keys := channel.Keys{temp.Key, notes.Key}
			dataTypes := []telem.DataType{telem.Float32T, telem.StringT}

			streamer, err := OpenStreamer(ctx, srv.url, keys, dataTypes,
				WithAPIKey(testAPIKey), WithFallback(fallback))
			require.NoError(t, err)
			defer streamer.Close()

			writer, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: keys, Start: 1}, dataTypes,
				WithAPIKey(testAPIKey), WithFallback(fallback))
			require.NoError(t, err)
			defer writer.Close()

			frame := framer.NewFrame(keys, []telem.Series{
				telem.NewSeriesV[float32](1.25, 2.5),
				telem.NewStringsV("start", "stop"),
			})
			require.NoError(t, writer.Write(ctx, frame))

			ack, err := writer.Commit(ctx)
			require.NoError(t, err)
			assert.True(t, ack.Ack)
			assert.Equal(t, 1, ack.SeqNum)

			got, err := streamer.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, frame.Keys, got.Keys)
			assert.Equal(t, frame.Series[0].Data, got.Series[0].Data)
			assert.Equal(t, frame.Series[1].Data, got.Series[1].Data)

			latest, err := srv.store.Latest(notes.Key)
			require.NoError(t, err)
			assert.Equal(t, telem.StringT, latest.DataType)
		})
	}
}

func TestStreamer_ReceivesLatestOnOpen(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	ch := srv.create(t, "speed", telem.Uint16T)
	_, err := srv.store.Write(framer.UnaryFrame(ch.Key, telem.NewSeriesV[uint16](42)))
	require.NoError(t, err)

	streamer, err := OpenStreamer(ctx, srv.url, channel.Keys{ch.Key}, []telem.DataType{telem.Uint16T},
		WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer streamer.Close()

	frame, err := streamer.Read(ctx)
	require.NoError(t, err)
	values, err := telem.UnmarshalSeries[uint16](frame.Series[0])
	require.NoError(t, err)
	assert.Equal(t, []uint16{42}, values)
}

func TestStreamer_Update(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	a := srv.create(t, "a", telem.Int8T)
	b := srv.create(t, "b", telem.Int8T)

	streamer, err := OpenStreamer(ctx, srv.url, channel.Keys{a.Key}, []telem.DataType{telem.Int8T},
		WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer streamer.Close()

	writer, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{a.Key, b.Key}},
		[]telem.DataType{telem.Int8T, telem.Int8T}, WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, streamer.Update(ctx, channel.Keys{b.Key}, []telem.DataType{telem.Int8T}))

	// Frames keep flowing while the server applies the update.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		frame := framer.NewFrame(channel.Keys{a.Key, b.Key}, []telem.Series{
			telem.NewSeriesV[int8](1),
			telem.NewSeriesV[int8](2),
		})
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			if err := writer.Write(ctx, frame); err != nil {
				return
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	defer wg.Wait()
	defer close(stop)

	for {
		got, err := streamer.Read(ctx)
		require.NoError(t, err)
		require.Len(t, got.Keys, 1)
		if got.Keys[0] == b.Key {
			values, err := telem.UnmarshalSeries[int8](got.Series[0])
			require.NoError(t, err)
			assert.Equal(t, []int8{2}, values)
			return
		}
		assert.Equal(t, a.Key, got.Keys[0])
	}
}

func TestStreamer_RejectedUpdate(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	a := srv.create(t, "a", telem.Int64T)
	b := srv.create(t, "b", telem.Int64T)

	streamer, err := OpenStreamer(ctx, srv.url, channel.Keys{a.Key}, []telem.DataType{telem.Int64T},
		WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer streamer.Close()

	require.NoError(t, streamer.Update(ctx, channel.Keys{999}, []telem.DataType{telem.Int8T}))
	_, err = streamer.Read(ctx)
	assert.ErrorIs(t, err, ErrRejected)
	_, err = streamer.Read(ctx)
	assert.Error(t, err)

	streamer, err = OpenStreamer(ctx, srv.url, channel.Keys{b.Key}, []telem.DataType{telem.Int64T},
		WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer streamer.Close()

	writer, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{b.Key}},
		[]telem.DataType{telem.Int64T}, WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Write(ctx, framer.UnaryFrame(b.Key, telem.NewSeriesV[int64](42))))

	got, err := streamer.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, channel.Keys{b.Key}, got.Keys)
	values, err := telem.UnmarshalSeries[int64](got.Series[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, values)
}

func TestOpenWriter_Errors(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	ch := srv.create(t, "x", telem.Int64T)

	t.Run("bad api key", func(t *testing.T) {
		_, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{ch.Key}},
			[]telem.DataType{telem.Int64T}, WithAPIKey("wrong"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{999}},
			[]telem.DataType{telem.Int64T}, WithAPIKey(testAPIKey))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("declared data type mismatch", func(t *testing.T) {
		_, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{ch.Key}},
			[]telem.DataType{telem.Float64T}, WithAPIKey(testAPIKey))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Contains(t, err.Error(), "does not match")
	})

	t.Run("key and type count mismatch", func(t *testing.T) {
		_, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{ch.Key}}, nil,
			WithAPIKey(testAPIKey))
		assert.Error(t, err)
	})
}

func TestWriter_Commit(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	ch := srv.create(t, "x", telem.Int64T)

	writer, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{ch.Key}},
		[]telem.DataType{telem.Int64T}, WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer writer.Close()

	series := telem.NewSeriesV[int64](5)
	series.TimeRange = telem.TimeRange{Start: 1, End: 50}
	require.NoError(t, writer.Write(ctx, framer.UnaryFrame(ch.Key, series)))
	require.NoError(t, writer.Write(ctx, framer.UnaryFrame(ch.Key, series)))
	ack, err := writer.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ack.SeqNum)
	assert.Equal(t, telem.TimeStamp(50), ack.End)

	// The write count resets on every commit.
	ack, err = writer.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ack.SeqNum)
}

func TestWriter_CommitReportsWriteErrors(t *testing.T) {
	srv := startServer(t, "")
	ctx := testContext(t)
	ch := srv.create(t, "x", telem.Int64T)

	writer, err := OpenWriter(ctx, srv.url, framer.WriterConfig{Keys: channel.Keys{ch.Key}},
		[]telem.DataType{telem.Int64T}, WithAPIKey(testAPIKey))
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, srv.store.Close())
	require.NoError(t, writer.Write(ctx, framer.UnaryFrame(ch.Key, telem.NewSeriesV[int64](5))))

	ack, err := writer.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, ack.Ack)
	assert.Contains(t, err.Error(), "write")
	assert.Contains(t, err.Error(), "commit")
}
