package shard

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/xtxerr/wattmon/config"
	"github.com/xtxerr/wattmon/internal/errors"
	"github.com/xtxerr/wattmon/internal/logging"
)

var log = logging.Component("shard")

// Store is the single writer of a shard directory. It tracks the set of
// known shard ids and appends record arrays to the active (largest-id)
// shard, rotating to a fresh shard when the size budget would be
// exceeded.
//
// Store serializes its operations internally so the sampling loop and
// the archiver can share it. There is exactly one Store per directory;
// readers open the files independently.
type Store struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	active  int
	known   map[int]struct{}
	closed  bool
}

// New returns a store rooted at dir with the given per-shard byte
// budget. Call Discover before the first Save.
func New(dir string, maxSize int64) *Store {
	return &Store{
		dir:     dir,
		maxSize: maxSize,
		active:  1,
		known:   make(map[int]struct{}),
	}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Active returns the id of the shard the next Save will target.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Path returns the file path of the shard with the given id.
func (s *Store) Path(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id))
}

// Known returns the discovered and created shard ids in ascending
// order.
func (s *Store) Known() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.known))
	for id := range s.known {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Discover scans the root directory and rebuilds the shard set. A
// missing root is created empty; the active shard then defaults to id 1
// and is created lazily by the first Save. Any directory entry whose
// name is not a positive decimal integer fails discovery: the store
// refuses to write next to files it does not own.
func (s *Store) Discover() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(s.dir, 0o755); err != nil {
				return errors.Wrap(err, "create shard root")
			}
			s.active = 1
			s.known = make(map[int]struct{})
			log.Info("created shard root", "dir", s.dir)
			return nil
		}
		if fi, serr := os.Stat(s.dir); serr == nil && !fi.IsDir() {
			return errors.Wrapf(errors.ErrNotDirectory, "%s", s.dir)
		}
		return errors.Wrap(err, "read shard root")
	}

	known := make(map[int]struct{}, len(entries))
	maxID := 0
	for _, entry := range entries {
		id, perr := strconv.Atoi(entry.Name())
		if perr != nil || id <= 0 || entry.IsDir() {
			return errors.Wrapf(errors.ErrCorruptShard, "unexpected entry %q", entry.Name())
		}
		known[id] = struct{}{}
		if id > maxID {
			maxID = id
		}
	}

	s.known = known
	s.active = 1
	if maxID > 0 {
		s.active = maxID
	}

	log.Info("discovered shards", "dir", s.dir, "count", len(known), "active", s.active)
	return nil
}

// Save appends the record array to the active shard, rotating first if
// the array would push the shard past the size budget. The whole array
// lands in a single shard and is fsynced before Save returns.
//
// A save that fails partway may leave a truncated tail in the active
// shard; readers detect this by the file length not being a record
// multiple.
func (s *Store) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}
	if len(records) == 0 {
		return nil
	}

	need := int64(len(records) * config.RecordSize)

	var size int64
	if fi, err := os.Stat(s.Path(s.active)); err == nil {
		size = fi.Size()
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat active shard")
	}

	if size+need > s.maxSize {
		s.active++
		log.Info("rotating shard", "active", s.active, "previous_bytes", size)
	}

	f, err := os.OpenFile(s.Path(s.active), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open active shard")
	}

	if _, err := f.Write(EncodeRecords(records)); err != nil {
		f.Close()
		return errors.Wrap(err, "append records")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "sync shard")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close shard")
	}

	s.known[s.active] = struct{}{}
	return nil
}

// Remove deletes a rotated-away shard, typically after it has been
// archived. The active shard cannot be removed.
func (s *Store) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrStoreClosed
	}
	if id == s.active {
		return errors.Wrapf(errors.ErrShardNotFound, "shard %d is active", id)
	}
	if _, ok := s.known[id]; !ok {
		return errors.Wrapf(errors.ErrShardNotFound, "shard %d", id)
	}
	if err := os.Remove(s.Path(id)); err != nil {
		return errors.Wrap(err, "remove shard")
	}
	delete(s.known, id)
	return nil
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
