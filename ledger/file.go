package ledger

import (
	"bufio"
	"io"
	"os"

	"github.com/algorand/go-deadlock"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/luca-patrignani/byzantine-bank/logging"
)

var (
	// ErrLocked is returned when another process already owns the ledger file.
	ErrLocked = errors.New("ledger file is locked by another process")
	// ErrBroken is returned by every Append after a failed append could not
	// be rolled back. The file must be repaired by a restart.
	ErrBroken = errors.New("ledger file is in an unknown state")
)

// ledgerFile is the subset of *os.File the store relies on.
type ledgerFile interface {
	io.ReadWriteSeeker
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

// FileStore is a Store backed by one newline-delimited text file.
type FileStore struct {
	mu     deadlock.Mutex
	path   string
	file   ledgerFile
	lock   *flock.Flock
	log    logging.Logger
	broken error
}

// OpenFile opens (creating if needed) the ledger at path and takes an
// exclusive lock on path+".lock" for the lifetime of the store.
func OpenFile(path string, log logging.Logger) (*FileStore, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", path)
	}
	if !locked {
		return nil, errors.Wrap(ErrLocked, path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	return &FileStore{path: path, file: f, lock: lock, log: log.With("ledger", path)}, nil
}

// Replay scans the file from the beginning. A trailing partial record is
// dropped and the file truncated; any other malformed line is an error.
func (s *FileStore) Replay(apply func(Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek ledger")
	}
	r := bufio.NewReader(s.file)
	var offset int64
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			if len(line) > 0 {
				s.log.Warnf("discarding %d byte partial record after line %d", len(line), lineNo)
				if err := s.file.Truncate(offset); err != nil {
					return errors.Wrap(err, "truncate partial record")
				}
				if err := s.file.Sync(); err != nil {
					return errors.Wrap(err, "sync after truncate")
				}
			}
			break
		}
		if err != nil {
			return errors.Wrap(err, "read ledger")
		}
		lineNo++
		rec, perr := ParseLine(string(line[:len(line)-1]))
		if perr != nil {
			return errors.Wrapf(perr, "%s line %d", s.path, lineNo)
		}
		if err := apply(rec); err != nil {
			return errors.Wrapf(err, "%s line %d", s.path, lineNo)
		}
		offset += int64(len(line))
	}
	s.log.Debugf("replayed %d records", lineNo)
	return nil
}

// Append writes rec and flushes it to stable storage before returning.
//
// A failed write or sync is undone by truncating the file back to its size
// before the append, so a record is either stored and acknowledged or
// absent. If the truncation fails too, the store refuses further appends.
func (s *FileStore) Append(rec Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrClosed
	}
	if s.broken != nil {
		return errors.Wrapf(ErrBroken, "%v", s.broken)
	}
	info, err := s.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat ledger")
	}
	if err := s.write(line); err != nil {
		s.rollback(info.Size(), err)
		return err
	}
	return nil
}

func (s *FileStore) write(line []byte) error {
	n, err := s.file.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return errors.Wrap(err, "append record")
	}
	return errors.Wrap(s.file.Sync(), "sync ledger")
}

// rollback restores the file to size after cause interrupted an append.
func (s *FileStore) rollback(size int64, cause error) {
	err := s.file.Truncate(size)
	if err == nil {
		err = s.file.Sync()
	}
	if err != nil {
		s.broken = errors.Wrapf(err, "roll back after %v", cause)
		s.log.Errorf("ledger unusable: %v", s.broken)
		return
	}
	s.log.Warnf("rolled back failed append: %v", cause)
}

// Close releases the file and its lock.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
