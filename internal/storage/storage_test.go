package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

func openTemp(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "readings.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	require.Nil(t, st)

	_, err = Open(Config{Driver: "bolt", Path: "x"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestStoreDrivers(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{Session: "s", Seq: 1, Tick: 1000, At: base, DistanceCM: 30},
		{Session: "s", Seq: 2, Tick: 2000, At: base.Add(time.Hour), DistanceCM: 20},
		{Session: "s", Seq: 3, Tick: 3000, At: base.Add(2 * time.Hour), DistanceCM: 10},
	}

	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openTemp(t, driver)

			require.NoError(t, st.AppendReadings(ctx, recs[:2]))
			require.NoError(t, st.AppendReadings(ctx, recs[2:]))

			got, err := st.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, uint32(3), got[0].Seq)
			require.Equal(t, uint32(2), got[1].Seq)
			require.Equal(t, uint32(10), got[0].DistanceCM)
			require.True(t, got[0].At.Equal(recs[2].At))

			n, err := st.Prune(ctx, base.Add(90*time.Minute))
			require.NoError(t, err)
			require.Equal(t, int64(2), n)

			got, err = st.Recent(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, uint32(3), got[0].Seq)

			// Still writable after a prune.
			require.NoError(t, st.AppendReadings(ctx, recs[:1]))
			got, err = st.Recent(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 2)

			require.NoError(t, st.Close())
		})
	}
}

func TestFileStoreClosed(t *testing.T) {
	st := openTemp(t, "file")
	require.NoError(t, st.Close())
	require.ErrorIs(t, st.AppendReadings(context.Background(), []Record{{Seq: 1}}), ErrClosed)
}

func TestFilePruneKeepsStoreWritableWhenReopenFails(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := openTemp(t, "file")
	fs := st.(*fileStore)

	require.NoError(t, st.AppendReadings(ctx, []Record{
		{Seq: 1, At: base},
		{Seq: 2, At: base.Add(time.Hour)},
	}))

	fs.reopen = func(string) (*os.File, error) { return nil, errors.New("too many open files") }
	_, err := st.Prune(ctx, base.Add(time.Minute))
	require.ErrorContains(t, err, "too many open files")
	require.NoError(t, st.AppendReadings(ctx, []Record{{Seq: 3, At: base.Add(2 * time.Hour)}}), "old handle still open")

	fs.reopen = openAppend
	require.NoError(t, st.AppendReadings(ctx, []Record{{Seq: 4, At: base.Add(3 * time.Hour)}}))
	got, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "the pruned file was swapped in on the next append")
	require.Equal(t, uint32(4), got[0].Seq)
	require.Equal(t, uint32(2), got[1].Seq)

	_, err = os.Stat(fs.path + ".tmp")
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, st.Close())
}

func TestRecorderBatchesAndFlushes(t *testing.T) {
	clk := clock.NewManual(0)
	bus := eventbus.New[sensor.Reading](eventbus.DefaultCapacity, clk)
	st := openTemp(t, "file")

	rec, err := NewRecorder(st, 3, RecorderOptions{Queue: 8})
	require.NoError(t, err)
	require.NotEmpty(t, rec.Session())
	require.True(t, bus.Subscribe(OnReading, rec))

	for i := uint32(1); i <= 4; i++ {
		clk.Set(clock.Millis(i * 1000))
		bus.Publish(sensor.Reading{DistanceCM: i * 10, Seq: i})
	}
	require.Equal(t, 1, rec.Buffered(), "a full ring is handed off immediately")

	flush := task.NewRunner("flush", 5000, rec)
	flush.Callback(flush)
	require.Equal(t, 0, rec.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Writer(ctx)
	}()
	cancel()
	<-done

	got, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, uint32(4), got[0].Seq)
	require.Equal(t, uint32(4000), got[0].Tick)
	require.Equal(t, rec.Session(), got[0].Session)

	s := rec.Stats()
	require.Equal(t, uint64(4), s.Recorded)
	require.Equal(t, uint64(2), s.Handed)
	require.Equal(t, uint64(4), s.Written)
	require.Zero(t, s.Dropped)
}

func TestRecorderDropsWhenWriterIsBehind(t *testing.T) {
	st := openTemp(t, "file")
	rec, err := NewRecorder(st, 1, RecorderOptions{Queue: 1, Session: "fixed"})
	require.NoError(t, err)

	rec.add(1, sensor.Reading{DistanceCM: 5, Seq: 1})
	rec.add(2, sensor.Reading{DistanceCM: 6, Seq: 2})
	s := rec.Stats()
	require.Equal(t, uint64(1), s.Handed)
	require.Equal(t, uint64(1), s.Dropped)
}

func TestRecorderDrainAndPrune(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	wall := now
	st := openTemp(t, "sqlite")
	rec, err := NewRecorder(st, 8, RecorderOptions{Wall: func() time.Time { return wall }})
	require.NoError(t, err)

	rec.add(1, sensor.Reading{DistanceCM: 5, Seq: 1})
	wall = now.Add(48 * time.Hour)
	rec.add(2, sensor.Reading{DistanceCM: 6, Seq: 2})
	rec.Drain(context.Background())
	require.Equal(t, uint64(2), rec.Stats().Written)

	prune := task.New("prune", 1000, rec.PruneFunc(24*time.Hour), nil)
	prune.Callback(prune)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Writer(ctx)
	}()
	require.Eventually(t, func() bool { return rec.pruned.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	got, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint32(2), got[0].Seq)
}

func TestNewRecorderValidates(t *testing.T) {
	_, err := NewRecorder(nil, 1, RecorderOptions{})
	require.ErrorIs(t, err, ErrDisabled)
	_, err = NewRecorder(openTemp(t, "file"), 0, RecorderOptions{})
	require.Error(t, err)
}
