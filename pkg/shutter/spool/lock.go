package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
)

// ErrLocked is returned when another process owns the spool.
var ErrLocked = errors.New("spool already in use")

// lockName is hidden so the spool never mistakes it for a payload.
const lockName = ".shutter.pid"

// Lock claims a spool directory for one process, so two watchers never
// ingest the same payload twice. The claim is an OS file lock, which the
// kernel drops when the owner exits; the file content is the owner's PID
// and only feeds the "already in use" message.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire claims dir for the current process without waiting.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	path := filepath.Join(dir, lockName)

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire spool lock: %w", err)
	}
	if !ok {
		if pid, err := readPID(path); err == nil {
			return nil, fmt.Errorf("%w: pid %d", ErrLocked, pid)
		}
		return nil, ErrLocked
	}

	log := logging.Get("spool")
	if pid, err := readPID(path); err == nil && pid != os.Getpid() {
		log.Debug("taking over spool from exited process", "stale_pid", pid)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.Warn("recording spool owner", "path", path, "error", err)
	}
	return &Lock{path: path, lock: fl}, nil
}

// Release gives up the claim. The file is left in place: removing it
// would let a later process lock a fresh inode while another still holds
// the old one.
func (l *Lock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := os.Truncate(l.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Get("spool").Debug("clearing spool owner", "error", err)
	}
	return l.lock.Unlock()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
