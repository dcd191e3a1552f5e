package mediastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)

	rec := &Record{
		Path:      "/photos/IMG_20260101_120000.jpg",
		RequestID: "req-1",
		Kind:      request.KindEncoded,
		Size:      2048,
		SavedAt:   time.Unix(1700000000, 0),
	}
	require.NoError(t, s.Put(rec))

	got, err := s.Get(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, rec.RequestID, got.RequestID)
	assert.Equal(t, request.KindEncoded, got.Kind)
	assert.Equal(t, int64(2048), got.Size)
	assert.True(t, rec.SavedAt.Equal(got.SavedAt))
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("/nope.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutDefaultsSavedAt(t *testing.T) {
	s := openTestStore(t)

	rec := &Record{Path: "/a.dng", Kind: request.KindRaw}
	require.NoError(t, s.Put(rec))
	assert.False(t, rec.SavedAt.IsZero())
}

func TestStore_PutReplacesPath(t *testing.T) {
	s := openTestStore(t)

	base := time.Unix(1700000000, 0)
	require.NoError(t, s.Put(&Record{Path: "/a.jpg", Size: 1, SavedAt: base}))
	require.NoError(t, s.Put(&Record{Path: "/a.jpg", Size: 2, SavedAt: base.Add(time.Second)}))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get("/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Size)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(&Record{
			Path:    fmt.Sprintf("/img_%d.jpg", i),
			SavedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "/img_4.jpg", all[0].Path)
	assert.Equal(t, "/img_0.jpg", all[4].Path)

	top, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "/img_3.jpg", top[1].Path)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(&Record{Path: "/a.jpg"}))
	require.NoError(t, s.Delete("/a.jpg"))
	require.NoError(t, s.Delete("/never.jpg"))

	_, err := s.Get("/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordKey_Ordering(t *testing.T) {
	early := recordKey(time.Unix(1, 0), "/z.jpg")
	late := recordKey(time.Unix(2, 0), "/a.jpg")
	assert.Less(t, string(early), string(late))
}
