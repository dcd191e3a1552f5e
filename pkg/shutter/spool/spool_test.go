package spool_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
	"github.com/jamesainslie/shutter/pkg/shutter/spool"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []*request.Request
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, req *request.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeQueue) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newSpool(t *testing.T, q spool.Queue, opts spool.Options) (*spool.Spool, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := spool.New(dir, q, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestScan_EnqueuesKnownFilesInOrder(t *testing.T) {
	q := &fakeQueue{}
	s, dir := newSpool(t, q, spool.Options{})

	writeFile(t, dir, "b.dng", "raw")
	writeFile(t, dir, "a.jpg", "jpeg")
	writeFile(t, dir, "c.webp", "webp")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, ".partial.jpg", "ignored")

	n, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, q.reqs, 3)
	assert.Equal(t, request.KindEncoded, q.reqs[0].Kind())
	assert.Equal(t, request.KindRaw, q.reqs[1].Kind())
	assert.Equal(t, request.UnitCostRaw, q.reqs[1].Cost())
	assert.Equal(t, request.FormatWEBP, q.reqs[2].Params().Format)

	_, err = os.Stat(filepath.Join(dir, "a.jpg"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "admitted files are removed")
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 2, stats.Encoded)
	assert.Equal(t, 1, stats.Raw)
	assert.Equal(t, int64(11), stats.Bytes)
}

func TestScan_CustomExtensions(t *testing.T) {
	q := &fakeQueue{}
	s, dir := newSpool(t, q, spool.Options{Extensions: []string{"png"}})

	writeFile(t, dir, "a.jpg", "jpeg")
	writeFile(t, dir, "b.PNG", "png")

	n, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, request.FormatPNG, q.reqs[0].Params().Format)
}

func TestScan_ConfiguredFormatAndQuality(t *testing.T) {
	q := &fakeQueue{}
	s, dir := newSpool(t, q, spool.Options{
		Extensions: []string{".frame", ".jpg", ".dng"},
		Format:     request.FormatWEBP,
		Quality:    75,
	})

	writeFile(t, dir, "a.frame", "frame")
	writeFile(t, dir, "b.jpg", "jpeg")
	writeFile(t, dir, "c.dng", "raw")

	n, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	assert.Equal(t, request.FormatWEBP, q.reqs[0].Params().Format, "neutral extensions take the configured format")
	assert.Equal(t, request.FormatStandard, q.reqs[1].Params().Format, "a .jpg payload stays JPEG")
	for _, req := range q.reqs {
		assert.Equal(t, 75, req.Params().Quality)
	}
}

func TestScan_CancelWhileQueueFullIsClean(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 7})
	s, dir := newSpool(t, q, spool.Options{})

	// One RAW capture already pending; a second (6+6 > 7) must wait.
	require.NoError(t, q.Enqueue(context.Background(), request.NewRaw(&request.RawImage{Data: []byte("raw")}, request.Params{})))
	path := writeFile(t, dir, "a.dng", "raw-a")

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := s.Scan(ctx)
		done <- result{n, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Zero(t, r.n)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not stop")
	}

	_, err := os.Stat(path)
	assert.NoError(t, err, "the payload stays in the spool")
}

func TestScan_SkipsEmptyFiles(t *testing.T) {
	q := &fakeQueue{}
	s, dir := newSpool(t, q, spool.Options{})

	writeFile(t, dir, "empty.jpg", "")

	n, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.Stats().Skipped)
}

func TestScan_EnqueueErrorKeepsFile(t *testing.T) {
	q := &fakeQueue{err: queue.ErrClosed}
	s, dir := newSpool(t, q, spool.Options{})

	path := writeFile(t, dir, "a.jpg", "jpeg")

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "a refused payload stays in the spool")
}

func TestRun_PicksUpNewFiles(t *testing.T) {
	q := &fakeQueue{}
	s, dir := newSpool(t, q, spool.Options{Settle: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Write under a hidden name and rename, as a capture process would.
	tmp := writeFile(t, dir, ".incoming", "jpeg-data")
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "IMG_1.jpg")))

	require.Eventually(t, func() bool { return q.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_BackpressureFromQueue(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 7})
	s, dir := newSpool(t, q, spool.Options{Settle: 10 * time.Millisecond, Gate: saver.NewPauseGate(true)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	// Two RAW payloads cost 12 > 7: the second waits for the first to
	// complete.
	writeFile(t, dir, "a.dng", "raw-a")
	require.Eventually(t, func() bool { return q.Snapshot().Pending == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "b.dng", "raw-b")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, q.Snapshot().Pending)
	_, err := os.Stat(filepath.Join(dir, "b.dng"))
	assert.NoError(t, err, "file stays until admitted")

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(first))

	require.Eventually(t, func() bool { return q.Snapshot().Pending == 1 && q.Snapshot().Queued == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	s, _ := newSpool(t, &fakeQueue{}, spool.Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
