package buffer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	apperrors "github.com/jittakal/kafetl/internal/errors"
)

const spillFilePattern = ".fbuf*.tmp"

// slot is one fixed-size area of the spill file.
// Its offset in the file is index * slotSize.
type slot struct {
	index int
	used  int
}

// spillStore keeps full write regions on disk until the reader wants them.
// It is not safe for concurrent use; SpillBuffer serializes access.
type spillStore struct {
	dir      string
	slotSize int
	file     *os.File
	path     string
	free     []slot // consumed slots, reused head first
	filled   []slot // unread slots, oldest first
	next     int
	logger   *slog.Logger
}

func newSpillStore(dir string, slotSize int, logger *slog.Logger) *spillStore {
	return &spillStore{
		dir:      dir,
		slotSize: slotSize,
		logger:   logger,
	}
}

func (s *spillStore) hasFile() bool {
	return s.file != nil
}

func (s *spillStore) open() error {
	f, err := os.CreateTemp(s.dir, spillFilePattern)
	if err != nil {
		return &apperrors.SpillError{Operation: "create", Path: s.dir, Slot: -1, Err: err}
	}
	s.file = f
	s.path = f.Name()
	trackFile(s.path)

	s.logger.Debug("spill file created", "path", s.path, "slot_size", s.slotSize)
	return nil
}

// store writes a full region into a slot and queues it for reading.
// The whole slot is written so offsets stay fixed; used records the payload length.
func (s *spillStore) store(data []byte, used int) (slot, error) {
	if s.file == nil {
		if err := s.open(); err != nil {
			return slot{}, err
		}
	}

	var sl slot
	if len(s.free) > 0 {
		sl = s.free[0]
		s.free = s.free[1:]
	} else {
		sl = slot{index: s.next}
		s.next++
	}
	sl.used = used

	if _, err := s.file.WriteAt(data[:s.slotSize], s.offset(sl)); err != nil {
		return slot{}, &apperrors.SpillError{Operation: "write", Path: s.path, Slot: sl.index, Err: err}
	}

	s.filled = append(s.filled, sl)
	return sl, nil
}

// load moves the oldest filled slot into dst and returns the number of bytes read.
// The caller has checked that a filled slot exists.
func (s *spillStore) load(dst []byte) (int, error) {
	sl := s.filled[0]
	s.filled = s.filled[1:]

	n, err := s.file.ReadAt(dst[:sl.used], s.offset(sl))
	if err != nil && !(errors.Is(err, io.EOF) && n == sl.used) {
		return 0, &apperrors.SpillError{Operation: "read", Path: s.path, Slot: sl.index, Err: err}
	}

	s.free = append(s.free, sl)
	return n, nil
}

// reclaim returns every filled slot to the free list. The file is kept.
func (s *spillStore) reclaim() {
	s.free = append(s.free, s.filled...)
	s.filled = s.filled[:0]
}

// slots returns the number of slots ever allocated in the file.
func (s *spillStore) slots() int {
	return s.next
}

func (s *spillStore) fileBytes() int64 {
	return int64(s.next) * int64(s.slotSize)
}

func (s *spillStore) offset(sl slot) int64 {
	return int64(sl.index) * int64(s.slotSize)
}

// close closes and deletes the spill file, if any.
func (s *spillStore) close() error {
	s.free = nil
	s.filled = nil
	s.next = 0
	if s.file == nil {
		return nil
	}

	path := s.path
	closeErr := s.file.Close()
	s.file = nil
	s.path = ""

	removeErr := os.Remove(path)
	if removeErr != nil && errors.Is(removeErr, os.ErrNotExist) {
		// already swept by RemoveOrphans
		removeErr = nil
	}
	untrackFile(path)

	if err := errors.Join(closeErr, removeErr); err != nil {
		return &apperrors.SpillError{Operation: "delete", Path: path, Slot: -1, Err: fmt.Errorf("can't delete spill file: %w", err)}
	}

	s.logger.Debug("spill file removed", "path", path)
	return nil
}
