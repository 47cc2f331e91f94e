// Package overflow implements the durable overflow log (§6, §4.10): a
// newline-delimited JSON file that create() appends to when all three
// tiers fail a write. Drain replays it oldest-first; the maintenance
// orchestrator does not call Drain, so queued entries stay in the log until
// a caller drains them.
package overflow

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/memcore-dev/memcore/pkg/types"
)

// Entry is one overflow-logged write, pending replay into a tier once
// backends recover.
type Entry struct {
	Record    *types.Record `json:"record"`
	QueuedAt  string        `json:"queued_at"`
}

// Log is a single-writer append-only NDJSON file guarded by an exclusive
// advisory lock, optionally encrypting each line with nacl/secretbox so the
// overflow log is safe to leave on disk (§5).
type Log struct {
	mu         sync.Mutex
	path       string
	encryptKey *[32]byte
}

// New creates an overflow log at path. If key is non-nil it must be exactly
// 32 bytes; entries are then encrypted at rest with nacl/secretbox.
func New(path string, key []byte) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating overflow log directory: %w", err)
	}

	l := &Log{path: path}
	if len(key) > 0 {
		if len(key) != 32 {
			return nil, errors.New("overflow encryption key must be 32 bytes")
		}
		var k [32]byte
		copy(k[:], key)
		l.encryptKey = &k
	}
	return l, nil
}

// Append writes entry as one line, acquiring an exclusive advisory lock for
// the duration of the write so concurrent creators serialize safely (§5).
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening overflow log: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("locking overflow log: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling overflow entry: %w", err)
	}

	if l.encryptKey != nil {
		line, err = l.seal(line)
		if err != nil {
			return err
		}
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing overflow entry: %w", err)
	}
	return nil
}

func (l *Log) seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, l.encryptKey)
	return []byte(base64.StdEncoding.EncodeToString(sealed)), nil
}

func (l *Log) open(line []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(string(line))
	if err != nil {
		return nil, err
	}
	if len(sealed) < 24 {
		return nil, errors.New("overflow entry too short to contain nonce")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, l.encryptKey)
	if !ok {
		return nil, errors.New("overflow entry decryption failed")
	}
	return plain, nil
}

// Depth returns the number of entries currently queued.
func (l *Log) Depth() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// DrainFunc processes one dequeued entry. Returning an error stops the
// drain so the entry (and everything after it) stays queued for next time.
type DrainFunc func(Entry) error

// Drain reads entries oldest-first, calling fn for each, and rewrites the
// log to contain only the entries fn did not successfully process. If fn
// fails, Drain stops there and returns fn's error with the count drained
// before it.
func (l *Log) Drain(fn DrainFunc) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var remaining [][]byte
	drained := 0
	stop := false
	var stopErr error

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if stop {
			remaining = append(remaining, line)
			continue
		}

		raw := line
		if l.encryptKey != nil {
			raw, err = l.open(line)
			if err != nil {
				f.Close()
				return drained, err
			}
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			f.Close()
			return drained, fmt.Errorf("decoding overflow entry: %w", err)
		}

		if ferr := fn(entry); ferr != nil {
			remaining = append(remaining, line)
			stop = true
			stopErr = ferr
			continue
		}
		drained++
	}
	f.Close()
	if err := scanner.Err(); err != nil {
		return drained, err
	}

	tmp := l.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return drained, fmt.Errorf("creating overflow log replacement: %w", err)
	}
	w := bufio.NewWriter(out)
	for _, line := range remaining {
		if _, err := w.Write(append(line, '\n')); err != nil {
			out.Close()
			return drained, err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return drained, err
	}
	if err := out.Close(); err != nil {
		return drained, err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return drained, fmt.Errorf("replacing overflow log: %w", err)
	}
	return drained, stopErr
}
