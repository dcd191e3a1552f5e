package mediastore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

// KeySeparator separates the timestamp from the path in record keys.
const KeySeparator = '\x00'

// Key prefixes. Records are keyed by save time so iteration is
// chronological; the path index maps a path back to its record key.
var (
	recordPrefix = []byte("r/")
	pathPrefix   = []byte("p/")
)

// Record describes one saved image.
type Record struct {
	Path      string
	RequestID string
	Kind      request.Kind
	Size      int64
	SavedAt   time.Time

	// Quality is the encoder quality requested for the capture; zero
	// for RAW.
	Quality int
}

// Encode serializes the record using gob.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the record using gob.
func (r *Record) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}

// recordKey returns r/<big-endian unix nanos>\x00<path>.
func recordKey(savedAt time.Time, path string) []byte {
	key := make([]byte, 0, len(recordPrefix)+8+1+len(path))
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(savedAt.UnixNano()))
	key = append(key, KeySeparator)
	return append(key, path...)
}

// pathKey returns p/<path>.
func pathKey(path string) []byte {
	return append(append([]byte{}, pathPrefix...), path...)
}
