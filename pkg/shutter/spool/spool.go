// Package spool feeds the save queue from an inbox directory. An external
// capture process drops finished payloads there; each one becomes a save
// request and is removed once the queue has admitted it.
//
// Admission blocks while the queue is full, which stops the spool from
// reading further files until the saver catches up.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/saver"
)

// DefaultSettle is how long a file must stay unchanged before it is read.
const DefaultSettle = 200 * time.Millisecond

// DefaultExtensions are the payload types picked up when none are
// configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".webp", ".dng", ".raw"}

// rawExtensions hold sensor data; everything else is an encoded image.
var rawExtensions = map[string]bool{".dng": true, ".raw": true}

// Queue is the part of the save queue the spool needs.
type Queue interface {
	Enqueue(ctx context.Context, req *request.Request) error
}

// Options configures a Spool.
type Options struct {
	// Extensions lists accepted file extensions, with the leading dot.
	// Empty means DefaultExtensions.
	Extensions []string

	// Settle is the quiet period after the last write. Zero means
	// DefaultSettle.
	Settle time.Duration

	// Gate, if set, is checked so the spool can warn that saving goes on
	// while the host is in the background.
	Gate *saver.PauseGate

	// Format is the output format of encoded payloads whose extension
	// does not name one (for example a neutral ".frame").
	Format request.Format

	// Quality is recorded on every request for the processor.
	Quality int
}

// Stats counts what the spool has ingested.
type Stats struct {
	Encoded int
	Raw     int
	Skipped int
	Bytes   int64
}

// Spool watches an inbox directory and enqueues the payloads found there.
type Spool struct {
	dir     string
	queue   Queue
	gate    *saver.PauseGate
	exts    map[string]bool
	settle  time.Duration
	format  request.Format
	quality int

	watcher *fsnotify.Watcher
	ready   chan string
	done    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
	stats  Stats
	closed bool
}

// New creates a spool over dir, creating the directory if needed.
func New(dir string, q Queue, opts Options) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	accepted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		accepted[ext] = true
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Spool{
		dir:     dir,
		queue:   q,
		gate:    opts.Gate,
		exts:    accepted,
		settle:  settle,
		format:  opts.Format,
		quality: opts.Quality,
		watcher: fsw,
		ready:   make(chan string, 64),
		done:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Dir returns the watched directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Stats returns the ingest counters.
func (s *Spool) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Scan enqueues every payload already in the spool directory, oldest
// first, and returns how many were admitted. Ending ctx stops the scan
// without error; files not yet admitted stay in the spool.
func (s *Spool) Scan(ctx context.Context) (int, error) {
	var (
		mu    sync.Mutex
		found []string
	)

	conf := fastwalk.Config{
		Follow: false,
	}
	err := fastwalk.Walk(&conf, s.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil //nolint:nilerr // Skip unreadable entries
		}
		if d.IsDir() {
			if path != s.dir {
				return fs.SkipDir
			}
			return nil
		}
		if !s.accepts(path) {
			return nil
		}

		mu.Lock()
		found = append(found, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil
		}
		return 0, fmt.Errorf("scanning spool: %w", err)
	}

	// fastwalk visits in parallel; order by name so a burst keeps its
	// capture order.
	sort.Strings(found)

	admitted := 0
	for _, path := range found {
		ok, err := s.ingest(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return admitted, nil
			}
			return admitted, err
		}
		if ok {
			admitted++
		}
	}
	return admitted, nil
}

// Run processes filesystem events until ctx ends or the spool is closed.
// Queue admission happens on this goroutine, so a full queue holds back
// further ingestion. Run returns nil when stopped by ctx or Close, and the
// admission error when the queue stops accepting work.
func (s *Spool) Run(ctx context.Context) error {
	log := logging.Get("spool")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.done:
			return nil

		case path := <-s.ready:
			if _, err := s.ingest(ctx, path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && s.accepts(event.Name) {
				s.arm(event.Name)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)
		}
	}
}

// Close stops watching. Pending settle timers are cancelled.
func (s *Spool) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
	s.mu.Unlock()

	return s.watcher.Close()
}

func (s *Spool) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		// In-progress writes use hidden temp names.
		return false
	}
	return s.exts[strings.ToLower(filepath.Ext(name))]
}

// arm (re)starts the settle timer for path.
func (s *Spool) arm(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if t, ok := s.timers[path]; ok {
		t.Reset(s.settle)
		return
	}
	s.timers[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()

		select {
		case s.ready <- path:
		case <-s.done:
		}
	})
}

// ingest turns the file at path into a request and enqueues it. It
// reports false without error for files that vanished or are empty.
func (s *Spool) ingest(ctx context.Context, path string) (bool, error) {
	log := logging.Get("spool")

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		s.mu.Lock()
		s.stats.Skipped++
		s.mu.Unlock()
		log.Warn("skipping empty payload", "path", path)
		return false, nil
	}

	req := s.buildRequest(path, data, info.ModTime())

	if s.gate != nil && s.gate.Paused() {
		log.Warn("host paused, saving continues in background", "path", path)
	}

	if err := s.queue.Enqueue(ctx, req); err != nil {
		return false, fmt.Errorf("enqueueing %s: %w", filepath.Base(path), err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("removing spooled file", "path", path, "error", err)
	}

	s.mu.Lock()
	if req.Kind() == request.KindRaw {
		s.stats.Raw++
	} else {
		s.stats.Encoded++
	}
	s.stats.Bytes += int64(len(data))
	s.mu.Unlock()

	log.Debug("payload enqueued",
		"path", path, "kind", req.Kind(), "cost", req.Cost(),
		"size", humanize.IBytes(uint64(len(data))))
	return true, nil
}

func (s *Spool) buildRequest(path string, data []byte, modTime time.Time) *request.Request {
	ext := strings.ToLower(filepath.Ext(path))
	params := request.Params{CapturedAt: modTime, Format: s.format, Quality: s.quality}

	if rawExtensions[ext] {
		return request.NewRaw(&request.RawImage{Data: data}, params)
	}

	switch ext {
	case ".jpg", ".jpeg":
		params.Format = request.FormatStandard
	case ".webp":
		params.Format = request.FormatWEBP
	case ".png":
		params.Format = request.FormatPNG
	}
	return request.NewEncoded(request.ModeNormal, [][]byte{data}, params)
}
