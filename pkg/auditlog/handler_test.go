package auditlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memorySink) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memorySink) all() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func newHandler(t *testing.T, sink Sink, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(sink, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func TestHandlerRecordsActivations(t *testing.T) {
	sink := &memorySink{}
	h := newHandler(t, sink)

	logger := slog.New(h).WithGroup("patches").With(slog.String("session", "s-1"))
	logger.With(slog.String("patch", "exchange/getTicker")).Debug("patch active",
		slog.Int("journal", 3),
		slog.Group("ticker", slog.Float64("price", 16832.5)),
		slog.Any("err", errors.New("boom")),
	)
	logger.Info("no patch attribute")

	require.NoError(t, h.Close(context.Background()))

	entries := sink.all()
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, "s-1", e.Session)
	require.Equal(t, "exchange/getTicker", e.Patch)
	require.Equal(t, "patches", e.Scope)
	require.Equal(t, "DEBUG", e.Level)
	require.Equal(t, "patch active", e.Message)
	require.Equal(t, map[string]any{
		"journal": int64(3),
		"ticker":  map[string]any{"price": 16832.5},
		"err":     "boom",
	}, e.Attrs)
	require.False(t, e.Time.IsZero())
}

func TestHandlerLevel(t *testing.T) {
	sink := &memorySink{}
	h := newHandler(t, sink, WithLevel(slog.LevelWarn))

	require.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger := slog.New(h).With(slog.String("patch", "chain/getKeypair"))
	logger.Debug("patch active")
	logger.Warn("patch activation failed")

	require.NoError(t, h.Close(context.Background()))
	entries := sink.all()
	require.Len(t, entries, 1)
	require.Equal(t, "patch activation failed", entries[0].Message)
}

func TestHandlerAfterClose(t *testing.T) {
	h := newHandler(t, &memorySink{})
	require.NoError(t, h.Close(context.Background()))
	require.NoError(t, h.Close(context.Background()))

	require.False(t, h.Enabled(context.Background(), slog.LevelError))
	record := slog.NewRecord(time.Now(), slog.LevelInfo, "late", 0)
	record.AddAttrs(slog.String("patch", "exchange/loadFills"))
	require.ErrorIs(t, h.Handle(context.Background(), record), ErrClosed)
}

func TestHandlerCloseDuringConcurrentHandle(t *testing.T) {
	sink := &memorySink{}
	h, err := NewHandler(sink, WithQueueSize(1024))
	require.NoError(t, err)

	const workers = 8
	const perWorker = 50
	var (
		wg       sync.WaitGroup
		accepted sync.Map
	)
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < perWorker; i++ {
				msg := fmt.Sprintf("w%d-%d", w, i)
				r := slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
				r.AddAttrs(slog.String("patch", "exchange/loadFills"))
				err := h.Handle(context.Background(), r)
				if err == nil {
					accepted.Store(msg, true)
					continue
				}
				if !errors.Is(err, ErrClosed) {
					t.Errorf("handle %s: %v", msg, err)
				}
			}
		}(w)
	}

	close(start)
	require.NoError(t, h.Close(context.Background()))
	wg.Wait()

	stored := map[string]bool{}
	for _, e := range sink.all() {
		stored[e.Message] = true
	}
	count := 0
	accepted.Range(func(key, _ any) bool {
		count++
		require.True(t, stored[key.(string)], "accepted entry %s was not written", key)
		return true
	})
	require.Len(t, stored, count)
}

func TestHandlerQueueFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	sink := SinkFunc(func(context.Context, Entry) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	h, err := NewHandler(sink, WithQueueSize(1))
	require.NoError(t, err)

	record := func(msg string) slog.Record {
		r := slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
		r.AddAttrs(slog.String("patch", "exchange/placeOrders"))
		return r
	}

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, record("first")))
	<-entered
	require.NoError(t, h.Handle(ctx, record("second")))
	require.ErrorIs(t, h.Handle(ctx, record("third")), ErrQueueFull)

	close(release)
	require.NoError(t, h.Close(ctx))
}

func TestHandlerReportsSinkErrors(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	sink := SinkFunc(func(context.Context, Entry) error { return errors.New("disk full") })
	h := newHandler(t, sink, WithErrorHandler(func(e Entry, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, e.Patch+": "+err.Error())
	}))

	slog.New(h).Info("patch active", slog.String("patch", "exchange/settleFunds"))
	require.NoError(t, h.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"exchange/settleFunds: disk full"}, failed)
}

func TestNewHandlerRequiresSink(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}
