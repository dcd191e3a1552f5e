package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name    string
		isRaw   bool
		nImages int
		want    int
	}{
		{"single encoded", false, 1, UnitCostEncoded},
		{"burst of encoded", false, 5, 5 * UnitCostEncoded},
		{"single raw", true, 1, UnitCostRaw},
		{"two raw", true, 2, 2 * UnitCostRaw},
		{"no images", false, 0, 0},
		{"negative count", true, -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cost(tt.isRaw, tt.nImages))
		})
	}
}

func TestCost_RawOutweighsEncoded(t *testing.T) {
	assert.Greater(t, Cost(true, 1), 2*Cost(false, 1),
		"raw unit cost should be several times the encoded unit cost")
}

func TestPhotoCost(t *testing.T) {
	assert.Equal(t, UnitCostRaw+UnitCostEncoded, PhotoCost(1, 1))
	assert.Equal(t, 3*UnitCostEncoded, PhotoCost(0, 3))
	assert.Equal(t, Cost(true, 1)+Cost(false, 1), PhotoCost(1, 1))
}

func TestNewEncoded(t *testing.T) {
	images := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	req := NewEncoded(ModeNormal, images, Params{Quality: 90})

	require.NotNil(t, req)
	assert.NotEmpty(t, req.ID())
	assert.Equal(t, KindEncoded, req.Kind())
	assert.Equal(t, ModeNormal, req.Mode())
	assert.Equal(t, 3, req.ImageCount())
	assert.Equal(t, Cost(false, 3), req.Cost())
	assert.Equal(t, int64(11), req.PayloadSize())
	assert.Equal(t, 90, req.Params().Quality)
	assert.False(t, req.IsDummy())
}

func TestNewRaw(t *testing.T) {
	req := NewRaw(&RawImage{Data: make([]byte, 64), Width: 8, Height: 8}, Params{})

	assert.Equal(t, KindRaw, req.Kind())
	assert.Equal(t, 1, req.ImageCount())
	assert.Equal(t, UnitCostRaw, req.Cost())
	assert.Equal(t, int64(64), req.PayloadSize())
}

func TestNewDummy(t *testing.T) {
	req := NewDummy()

	assert.True(t, req.IsDummy())
	assert.Equal(t, 0, req.ImageCount())
	assert.Equal(t, DummyCost, req.Cost())
}

func TestRequest_UniqueIDs(t *testing.T) {
	a := NewDummy()
	b := NewDummy()
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestRequest_ReleaseKeepsCost(t *testing.T) {
	req := NewEncoded(ModeNormal, [][]byte{[]byte("x"), []byte("y")}, Params{})
	cost := req.Cost()

	req.Release()

	assert.Nil(t, req.Images())
	assert.Equal(t, int64(0), req.PayloadSize())
	assert.Equal(t, cost, req.Cost(), "cost is fixed for the request lifetime")
}

func TestFormat_Extension(t *testing.T) {
	assert.Equal(t, "jpg", FormatStandard.Extension())
	assert.Equal(t, "webp", FormatWEBP.Extension())
	assert.Equal(t, "png", FormatPNG.Extension())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "encoded", KindEncoded.String())
	assert.Equal(t, "raw", KindRaw.String())
	assert.Equal(t, "dummy", KindDummy.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
