package diskproc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/diskproc"
	"github.com/jamesainslie/shutter/pkg/shutter/mediastore"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

var captured = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type memIndex struct {
	mu   sync.Mutex
	recs []*mediastore.Record
	err  error
}

func (m *memIndex) Put(rec *mediastore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newProcessor(t *testing.T, idx diskproc.Index) (*diskproc.Processor, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "DCIM")
	p, err := diskproc.New(dir, diskproc.Options{Index: idx})
	require.NoError(t, err)
	return p, dir
}

func TestProcess_SingleImage(t *testing.T) {
	idx := &memIndex{}
	p, dir := newProcessor(t, idx)

	req := request.NewEncoded(request.ModeNormal, [][]byte{[]byte("jpeg-bytes")},
		request.Params{CapturedAt: captured})
	require.NoError(t, p.Process(context.Background(), req))

	assert.Equal(t, []string{"IMG_20260314_150926.jpg"}, listFiles(t, dir))
	data, err := os.ReadFile(filepath.Join(dir, "IMG_20260314_150926.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.Len(t, idx.recs, 1)
	assert.Equal(t, req.ID(), idx.recs[0].RequestID)
	assert.Equal(t, int64(10), idx.recs[0].Size)
}

func TestProcess_ConfiguredFormat(t *testing.T) {
	idx := &memIndex{}
	p, dir := newProcessor(t, idx)

	req := request.NewEncoded(request.ModeNormal, [][]byte{[]byte("webp-bytes")},
		request.Params{CapturedAt: captured, Format: request.FormatWEBP, Quality: 80})
	require.NoError(t, p.Process(context.Background(), req))

	assert.Equal(t, []string{"IMG_20260314_150926.webp"}, listFiles(t, dir))
	require.Len(t, idx.recs, 1)
	assert.Equal(t, 80, idx.recs[0].Quality)
}

func TestProcess_Suffixes(t *testing.T) {
	tests := []struct {
		name   string
		images int
		params request.Params
		want   []string
	}{
		{
			name:   "burst",
			images: 3,
			params: request.Params{CapturedAt: captured},
			want:   []string{"IMG_20260314_150926_0.jpg", "IMG_20260314_150926_1.jpg", "IMG_20260314_150926_2.jpg"},
		},
		{
			name:   "forced with offset",
			images: 1,
			params: request.Params{CapturedAt: captured, ForceSuffix: true, SuffixOffset: 4},
			want:   []string{"IMG_20260314_150926_4.jpg"},
		},
		{
			name:   "webp",
			images: 1,
			params: request.Params{CapturedAt: captured, Format: request.FormatWEBP},
			want:   []string{"IMG_20260314_150926.webp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, dir := newProcessor(t, nil)
			images := make([][]byte, tt.images)
			for i := range images {
				images[i] = []byte{byte(i)}
			}
			req := request.NewEncoded(request.ModeNormal, images, tt.params)
			require.NoError(t, p.Process(context.Background(), req))
			assert.Equal(t, tt.want, listFiles(t, dir))
		})
	}
}

func TestProcess_Raw(t *testing.T) {
	p, dir := newProcessor(t, nil)

	req := request.NewRaw(&request.RawImage{Data: []byte("sensor"), Width: 2, Height: 3},
		request.Params{CapturedAt: captured})
	require.NoError(t, p.Process(context.Background(), req))
	assert.Equal(t, []string{"IMG_20260314_150926.dng"}, listFiles(t, dir))
}

func TestProcess_RawWithoutBuffer(t *testing.T) {
	p, _ := newProcessor(t, nil)

	req := request.NewRaw(nil, request.Params{})
	assert.Error(t, p.Process(context.Background(), req))
}

func TestProcess_NameCollision(t *testing.T) {
	p, dir := newProcessor(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := request.NewEncoded(request.ModeNormal, [][]byte{{1}}, request.Params{CapturedAt: captured})
		require.NoError(t, p.Process(ctx, req))
	}
	assert.Equal(t, []string{
		"IMG_20260314_150926-1.jpg",
		"IMG_20260314_150926-2.jpg",
		"IMG_20260314_150926.jpg",
	}, listFiles(t, dir))
}

func TestProcess_UnsupportedModesSaveBase(t *testing.T) {
	tests := []struct {
		base  request.SaveBase
		files int
	}{
		{request.SaveBaseNone, 0},
		{request.SaveBaseFirst, 1},
		{request.SaveBaseAll, 3},
	}

	for _, tt := range tests {
		t.Run(tt.base.String(), func(t *testing.T) {
			p, dir := newProcessor(t, nil)
			req := request.NewEncoded(request.ModeMultiExposureFusion, [][]byte{{1}, {2}, {3}},
				request.Params{CapturedAt: captured, SaveBase: tt.base})

			err := p.Process(context.Background(), req)
			assert.ErrorIs(t, err, diskproc.ErrModeUnsupported)
			assert.Len(t, listFiles(t, dir), tt.files)
		})
	}
}

func TestProcess_Dummy(t *testing.T) {
	p, dir := newProcessor(t, nil)
	require.NoError(t, p.Process(context.Background(), request.NewDummy()))
	assert.Empty(t, listFiles(t, dir))
}

func TestProcess_IndexFailureIsNotSaveFailure(t *testing.T) {
	idx := &memIndex{err: errors.New("index locked")}
	p, dir := newProcessor(t, idx)

	req := request.NewEncoded(request.ModeNormal, [][]byte{{1}}, request.Params{CapturedAt: captured})
	require.NoError(t, p.Process(context.Background(), req))
	assert.Len(t, listFiles(t, dir), 1)
}

func TestProcess_NoTempFilesLeft(t *testing.T) {
	p, dir := newProcessor(t, nil)

	req := request.NewEncoded(request.ModeNormal, [][]byte{{1}, {2}}, request.Params{CapturedAt: captured})
	require.NoError(t, p.Process(context.Background(), req))
	for _, name := range listFiles(t, dir) {
		assert.False(t, strings.HasSuffix(name, ".tmp"), name)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	p, dir := newProcessor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := request.NewEncoded(request.ModeNormal, [][]byte{{1}}, request.Params{CapturedAt: captured})
	assert.ErrorIs(t, p.Process(ctx, req), context.Canceled)
	assert.Empty(t, listFiles(t, dir))
}

func TestProcess_WithMediaStore(t *testing.T) {
	store, err := mediastore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	p, dir := newProcessor(t, store)
	req := request.NewEncoded(request.ModeNormal, [][]byte{[]byte("abc")}, request.Params{CapturedAt: captured})
	require.NoError(t, p.Process(context.Background(), req))

	rec, err := store.Get(filepath.Join(dir, "IMG_20260314_150926.jpg"))
	require.NoError(t, err)
	assert.Equal(t, request.KindEncoded, rec.Kind)
}
