// Package shmseg allocates, opens and unlinks the shared-memory files
// that back topics. One topic maps to one file under the manager's
// namespace directory; the ring engine owns the bytes inside.
package shmseg

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"

	"github.com/vedarsh/kachow/internal/ring"
	"github.com/vedarsh/kachow/pkg/exception"
)

const segmentPrefix = "kachow-"

// DefaultDir picks the segment namespace directory: /dev/shm when
// present, the system temp directory otherwise.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Manager resolves topic names to segment files inside one namespace
// directory. It holds no per-segment state; segments own their own
// mapping.
type Manager struct {
	dir string
}

// NewManager returns a manager rooted at dir, or at DefaultDir() when
// dir is empty.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Manager{dir: dir}
}

// Dir returns the namespace directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(topic string) (string, error) {
	name, err := SanitizeTopic(topic)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, segmentPrefix+name), nil
}

// Segment is one mapped topic file. Close is idempotent.
type Segment struct {
	mu   sync.Mutex
	file *os.File
	mem  []byte
	ring *ring.Ring
	path string
}

// Ring returns the ring view over the mapped region.
func (s *Segment) Ring() *ring.Ring { return s.ring }

// Path returns the backing file path.
func (s *Segment) Path() string { return s.path }

// Close unmaps the region and closes the file. The backing file stays
// in place until Unlink; other processes keep their own mappings.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			firstErr = errors.Wrap(err, "munmap segment")
		}
		s.mem = nil
		s.ring = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close segment file")
		}
		s.file = nil
	}
	return firstErr
}

// OpenOrCreate returns a segment for topic, creating and initializing
// the backing file when it does not exist yet. The created flag tells
// the caller whether it owns the ring lifetime. Creation is exclusive;
// losing the create race degrades into a plain attach, so two
// processes racing on the first publish both end up on the same ring.
// A failed create never leaves a partially initialized file behind.
func (m *Manager) OpenOrCreate(topic string, cfg ring.Config) (seg *Segment, created bool, err error) {
	path, err := m.path(topic)
	if err != nil {
		return nil, false, err
	}
	total, err := ring.SegmentSize(cfg)
	if err != nil {
		return nil, false, errors.Wrap(exception.ErrAllocationFailed, err.Error())
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if os.IsExist(err) {
			seg, err := m.attachWait(topic)
			return seg, false, err
		}
		return nil, false, errors.Wrap(exception.ErrAllocationFailed, "create segment file").
			With("path", path)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}
	if err := file.Truncate(int64(total)); err != nil {
		cleanup()
		return nil, false, errors.Wrap(exception.ErrAllocationFailed, "resize segment file")
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(total),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, false, errors.Wrap(exception.ErrAllocationFailed, "mmap segment")
	}
	r, err := ring.Init(mem, cfg)
	if err != nil {
		unix.Munmap(mem)
		cleanup()
		return nil, false, errors.Wrap(exception.ErrAllocationFailed, err.Error())
	}
	return &Segment{file: file, mem: mem, ring: r, path: path}, true, nil
}

// attachWait retries Attach briefly. Losing the create race can land
// here before the winner published the ring magic, so a short grace
// period separates "still initializing" from "genuinely corrupt".
func (m *Manager) attachWait(topic string) (*Segment, error) {
	var (
		seg *Segment
		err error
	)
	for i := 0; i < 50; i++ {
		seg, err = m.Attach(topic)
		if err == nil || stderrors.Is(err, exception.ErrTopicNotFound) {
			return seg, err
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil, err
}

// Attach maps an existing topic segment. ErrTopicNotFound when no
// segment exists; a present but invalid file is an error, never a
// crash.
func (m *Manager) Attach(topic string) (*Segment, error) {
	path, err := m.path(topic)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(exception.ErrTopicNotFound, topic)
		}
		return nil, errors.Wrap(exception.ErrAllocationFailed, "open segment file").
			With("path", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(exception.ErrAllocationFailed, "stat segment file")
	}
	if info.Size() < ring.HeaderSize {
		file.Close()
		return nil, errors.Errorf("segment file too small: %d bytes", info.Size())
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(exception.ErrAllocationFailed, "mmap segment")
	}
	r, err := ring.Attach(mem)
	if err != nil {
		unix.Munmap(mem)
		file.Close()
		return nil, errors.Wrap(err, "attach ring").With("path", path)
	}
	return &Segment{file: file, mem: mem, ring: r, path: path}, nil
}

// Exists reports whether a segment file is present for topic.
func (m *Manager) Exists(topic string) bool {
	path, err := m.path(topic)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Unlink removes the backing file. Existing mappings stay valid until
// their owners close them; new attaches fail with ErrTopicNotFound.
func (m *Manager) Unlink(topic string) error {
	path, err := m.path(topic)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(exception.ErrTopicNotFound, topic)
		}
		return errors.Wrap(err, "unlink segment")
	}
	return nil
}

// List returns the topic names with a segment file in the namespace.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read segment dir")
	}
	var topics []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutPrefix(e.Name(), segmentPrefix); ok {
			topics = append(topics, name)
		}
	}
	return topics, nil
}
