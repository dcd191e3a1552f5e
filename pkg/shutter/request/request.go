// Package request defines the unit of work handed to the background saver
// and the cost model used to admit it into the save queue.
//
// A Request is immutable once built: its cost is computed by the
// constructor and never re-derived. The only mutation allowed is Release,
// which drops payload references after the save has completed.
package request

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the payload carried by a request.
type Kind int

// Request kinds.
const (
	// KindEncoded carries one or more already-encoded images (JPEG or WEBP).
	KindEncoded Kind = iota
	// KindRaw carries a single RAW sensor buffer.
	KindRaw
	// KindDummy carries nothing. It is consumed like any other request and
	// is used as a barrier to observe that earlier submissions have drained.
	KindDummy
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindEncoded:
		return "encoded"
	case KindRaw:
		return "raw"
	case KindDummy:
		return "dummy"
	default:
		return "unknown"
	}
}

// Mode selects how the images of an encoded request are combined.
type Mode int

// Processing modes. Only meaningful for KindEncoded.
const (
	ModeNormal Mode = iota
	ModeMultiExposureFusion
	ModeAverage
	ModePanorama
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeMultiExposureFusion:
		return "fusion"
	case ModeAverage:
		return "average"
	case ModePanorama:
		return "panorama"
	default:
		return "unknown"
	}
}

// SaveBase controls whether the input frames of a combined capture are
// saved alongside (or instead of) the combined result.
type SaveBase int

// Base image policies.
const (
	SaveBaseNone SaveBase = iota
	SaveBaseFirst
	SaveBaseAll
)

// String returns the string representation of the policy.
func (b SaveBase) String() string {
	switch b {
	case SaveBaseNone:
		return "none"
	case SaveBaseFirst:
		return "first"
	case SaveBaseAll:
		return "all"
	default:
		return "unknown"
	}
}

// Format is the output file format for encoded images.
type Format int

// Output formats.
const (
	// FormatStandard keeps the payload as delivered by the camera (JPEG).
	FormatStandard Format = iota
	FormatWEBP
	FormatPNG
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatStandard:
		return "jpeg"
	case FormatWEBP:
		return "webp"
	case FormatPNG:
		return "png"
	default:
		return "unknown"
	}
}

// Extension returns the file extension (without dot) for the format.
func (f Format) Extension() string {
	switch f {
	case FormatWEBP:
		return "webp"
	case FormatPNG:
		return "png"
	default:
		return "jpg"
	}
}

// RawImage is an opaque RAW sensor buffer.
type RawImage struct {
	Data   []byte
	Width  int
	Height int
}

// Location is the geotag recorded with a capture.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Params holds the save-time parameters of a capture. The queue never
// looks at them; they are for the processor.
type Params struct {
	// CapturedAt is the capture timestamp, used for naming and EXIF.
	CapturedAt time.Time

	// ForceSuffix appends an index suffix even when only one image is saved.
	ForceSuffix bool

	// SuffixOffset is added to the index suffix of each saved image.
	SuffixOffset int

	// SaveBase selects which input frames of a combined capture are kept.
	SaveBase SaveBase

	Format  Format
	Quality int

	// Rotation is the clockwise rotation in degrees to apply on save.
	Rotation    int
	Mirror      bool
	FrontFacing bool

	// Location is nil when geotagging is disabled.
	Location     *Location
	GeoDirection *float64

	StampText string
	Artist    string
	Copyright string

	ISO          int
	ExposureTime time.Duration
	ZoomFactor   float64

	// SampleFactor is the thumbnail downsampling factor; higher is smaller.
	SampleFactor int
}

// Request is one unit of work for the saver.
type Request struct {
	id     string
	kind   Kind
	mode   Mode
	images [][]byte
	raw    *RawImage
	params Params
	cost   int
}

// NewEncoded builds a request that saves the given encoded images.
// The request takes ownership of the image buffers.
func NewEncoded(mode Mode, images [][]byte, params Params) *Request {
	return &Request{
		id:     uuid.New().String(),
		kind:   KindEncoded,
		mode:   mode,
		images: images,
		params: params,
		cost:   Cost(false, len(images)),
	}
}

// NewRaw builds a request that saves a RAW sensor buffer.
// The request takes ownership of the buffer.
func NewRaw(raw *RawImage, params Params) *Request {
	return &Request{
		id:     uuid.New().String(),
		kind:   KindRaw,
		mode:   ModeNormal,
		raw:    raw,
		params: params,
		cost:   Cost(true, 1),
	}
}

// NewDummy builds a barrier request.
func NewDummy() *Request {
	return &Request{
		id:   uuid.New().String(),
		kind: KindDummy,
		mode: ModeNormal,
		cost: DummyCost,
	}
}

// ID returns the unique request identifier.
func (r *Request) ID() string { return r.id }

// Kind returns the payload kind.
func (r *Request) Kind() Kind { return r.kind }

// Mode returns the processing mode.
func (r *Request) Mode() Mode { return r.mode }

// Images returns the encoded images in capture order.
func (r *Request) Images() [][]byte { return r.images }

// Raw returns the RAW buffer, or nil for non-RAW requests.
func (r *Request) Raw() *RawImage { return r.raw }

// Params returns the save-time parameters.
func (r *Request) Params() Params { return r.params }

// Cost returns the admission cost fixed at construction.
func (r *Request) Cost() int { return r.cost }

// IsDummy reports whether the request is a barrier.
func (r *Request) IsDummy() bool { return r.kind == KindDummy }

// ImageCount returns the number of images the request will save.
func (r *Request) ImageCount() int {
	switch r.kind {
	case KindEncoded:
		return len(r.images)
	case KindRaw:
		return 1
	default:
		return 0
	}
}

// PayloadSize returns the number of payload bytes held by the request.
func (r *Request) PayloadSize() int64 {
	var n int64
	for _, img := range r.images {
		n += int64(len(img))
	}
	if r.raw != nil {
		n += int64(len(r.raw.Data))
	}
	return n
}

// Release drops the payload references so the buffers can be collected.
// It is called by the saver once the request has been completed; the
// cost and identity are unaffected.
func (r *Request) Release() {
	r.images = nil
	r.raw = nil
}
