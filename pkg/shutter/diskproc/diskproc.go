// Package diskproc is the saver processor that writes captured images to
// an output directory and registers them in the media index.
package diskproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/mediastore"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
)

// ErrModeUnsupported is returned for processing modes whose merged output
// is not produced. Base images requested through SaveBase are still
// written first.
var ErrModeUnsupported = errors.New("processing mode not supported")

// timestampLayout names files by capture time.
const timestampLayout = "20060102_150405"

// Index records saved files. *mediastore.Store satisfies it.
type Index interface {
	Put(rec *mediastore.Record) error
}

// Options configures a Processor.
type Options struct {
	// Index, if set, is told about every file written.
	Index Index

	// Now supplies the timestamp for requests without a capture time.
	Now func() time.Time
}

// Processor writes requests to a directory.
type Processor struct {
	dir   string
	index Index
	now   func() time.Time
}

// New creates a processor writing into dir, creating it if needed.
func New(dir string, opts Options) (*Processor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{dir: dir, index: opts.Index, now: now}, nil
}

// Dir returns the output directory.
func (p *Processor) Dir() string {
	return p.dir
}

// Process saves req. It satisfies saver.Processor.
func (p *Processor) Process(ctx context.Context, req *request.Request) error {
	switch req.Kind() {
	case request.KindDummy:
		return nil
	case request.KindRaw:
		return p.saveRaw(ctx, req)
	case request.KindEncoded:
		return p.saveEncoded(ctx, req)
	default:
		return fmt.Errorf("unknown request kind %d", req.Kind())
	}
}

func (p *Processor) saveEncoded(ctx context.Context, req *request.Request) error {
	images := req.Images()
	if req.Mode() == request.ModeNormal {
		return p.saveImages(ctx, req, images)
	}

	var base [][]byte
	switch req.Params().SaveBase {
	case request.SaveBaseFirst:
		if len(images) > 0 {
			base = images[:1]
		}
	case request.SaveBaseAll:
		base = images
	}
	if err := p.saveImages(ctx, req, base); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrModeUnsupported, req.Mode())
}

func (p *Processor) saveImages(ctx context.Context, req *request.Request, images [][]byte) error {
	params := req.Params()
	suffixed := len(images) > 1 || params.ForceSuffix

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return err
		}

		suffix := ""
		if suffixed {
			suffix = "_" + strconv.Itoa(i+params.SuffixOffset)
		}
		name := p.baseName(params) + suffix + "." + params.Format.Extension()
		if err := p.write(req, name, img); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) saveRaw(ctx context.Context, req *request.Request) error {
	raw := req.Raw()
	if raw == nil {
		return errors.New("raw request without a buffer")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.write(req, p.baseName(req.Params())+".dng", raw.Data)
}

func (p *Processor) baseName(params request.Params) string {
	at := params.CapturedAt
	if at.IsZero() {
		at = p.now()
	}
	return "IMG_" + at.Format(timestampLayout)
}

// write stores data under name, atomically, never overwriting an existing
// file.
func (p *Processor) write(req *request.Request, name string, data []byte) error {
	log := logging.Get("diskproc")

	tmp, err := os.CreateTemp(p.dir, ".shutter-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}

	path, err := p.claim(name)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	log.Info("image saved", "path", path, "size", humanize.IBytes(uint64(len(data))))

	if p.index == nil {
		return nil
	}
	rec := &mediastore.Record{
		Path:      path,
		RequestID: req.ID(),
		Kind:      req.Kind(),
		Size:      int64(len(data)),
		SavedAt:   p.now(),
	}
	if req.Kind() == request.KindEncoded {
		rec.Quality = req.Params().Quality
	}
	if err := p.index.Put(rec); err != nil {
		// The image is on disk; a missing index entry is recoverable.
		log.Warn("indexing saved image", "path", path, "error", err)
	}
	return nil
}

// claim returns a free path for name, adding -N before the extension when
// a burst lands on a name that is already taken.
func (p *Processor) claim(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]

	path := filepath.Join(p.dir, name)
	for n := 1; ; n++ {
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
		path = filepath.Join(p.dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}
