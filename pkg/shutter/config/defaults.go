// Package config provides configuration management for shutter.
package config

// Default configuration values for shutter.
const (
	// DefaultCapacity of zero sizes the queue from detected memory.
	DefaultCapacity = 0

	// DefaultSlots of zero uses the queue capacity.
	DefaultSlots = 0

	// DefaultOutputFormat is the format encoded images are saved in.
	DefaultOutputFormat = "jpeg"

	// DefaultOutputQuality is the encoder quality for re-encoded output.
	DefaultOutputQuality = 90

	// DefaultSettle is the spool quiet period before a file is read.
	DefaultSettle = "200ms"

	// DefaultLogMaxSize is the log file size that triggers rotation.
	DefaultLogMaxSize = "10MiB"
)

// DefaultSpoolExtensions are the payload types the spool accepts.
var DefaultSpoolExtensions = []string{".jpg", ".jpeg", ".webp", ".dng", ".raw"}

// validFormats maps the output.format values to themselves; see Validate.
var validFormats = map[string]bool{
	"jpeg": true,
	"webp": true,
	"png":  true,
}
