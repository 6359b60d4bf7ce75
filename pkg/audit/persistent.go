package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PersistentConfig configures the on-disk trail.
type PersistentConfig struct {
	// Dir is the directory holding the JSONL trail files.
	Dir string
	// RotationSize rotates the current file once it exceeds this many
	// bytes. Zero disables size-based rotation.
	RotationSize int64
}

// ChainedEvent wraps an event with its position in the hash chain. Each
// entry's hash covers the previous entry's hash, so truncation or
// in-place edits of the trail are detectable.
type ChainedEvent struct {
	*Event
	PreviousHash string `json:"previous_hash,omitempty"`
	EventHash    string `json:"event_hash,omitempty"`
}

// PersistentTrail appends hash-chained events to JSONL files, one file
// per day, synced to disk on every record.
type PersistentTrail struct {
	dir          string
	rotationSize int64

	mu           sync.Mutex
	currentFile  *os.File
	currentName  string
	writer       *bufio.Writer
	lastHash     string
	eventCount   int64
	bytesWritten int64
}

// NewPersistentTrail opens (or continues) the trail under dir. The hash
// chain resumes from the last entry of today's file, if any.
func NewPersistentTrail(config PersistentConfig) (*PersistentTrail, error) {
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit trail directory: %w", err)
	}

	t := &PersistentTrail{
		dir:          config.Dir,
		rotationSize: config.RotationSize,
	}
	if err := t.openFile(); err != nil {
		return nil, err
	}
	if err := t.loadLastHash(); err != nil {
		// A missing or empty file just means a fresh chain
		t.lastHash = ""
	}
	return t, nil
}

// Record appends an event, chains its hash, and syncs the file. The
// event is durable when Record returns.
func (t *PersistentTrail) Record(event *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	chained := &ChainedEvent{Event: event, PreviousHash: t.lastHash}
	data, err := json.Marshal(chained)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	sum := sha256.Sum256(data)
	chained.EventHash = hex.EncodeToString(sum[:])

	data, err = json.Marshal(chained)
	if err != nil {
		return fmt.Errorf("marshal chained audit event: %w", err)
	}

	n, err := t.writer.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush audit event: %w", err)
	}
	// Durability before success: the trail must survive a crash that
	// follows the mutation it records
	if err := t.currentFile.Sync(); err != nil {
		return fmt.Errorf("sync audit trail: %w", err)
	}

	t.lastHash = chained.EventHash
	t.eventCount++
	t.bytesWritten += int64(n)

	if t.shouldRotate() {
		return t.rotate()
	}
	return nil
}

// EventCount returns the number of events written through this handle.
func (t *PersistentTrail) EventCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventCount
}

// Verify replays a trail file and checks the hash chain: every entry's
// hash must match its content and its previous-hash must match the
// preceding entry. Returns the number of verified entries.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	verified := 0
	prevHash := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var chained ChainedEvent
		if err := json.Unmarshal(line, &chained); err != nil {
			return verified, fmt.Errorf("audit trail entry %d: %w", verified+1, err)
		}
		if chained.PreviousHash != prevHash {
			return verified, fmt.Errorf("audit trail entry %d: chain break", verified+1)
		}

		want := chained.EventHash
		chained.EventHash = ""
		data, err := json.Marshal(&chained)
		if err != nil {
			return verified, fmt.Errorf("audit trail entry %d: %w", verified+1, err)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != want {
			return verified, fmt.Errorf("audit trail entry %d: hash mismatch", verified+1)
		}

		prevHash = want
		verified++
	}
	if err := scanner.Err(); err != nil {
		return verified, fmt.Errorf("read audit trail: %w", err)
	}
	return verified, nil
}

// Close flushes and closes the current file.
func (t *PersistentTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var flushErr error
	if t.writer != nil {
		flushErr = t.writer.Flush()
	}
	var closeErr error
	if t.currentFile != nil {
		closeErr = t.currentFile.Close()
	}
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (t *PersistentTrail) currentFilename() string {
	return fmt.Sprintf("audit-%s.jsonl", time.Now().Format("2006-01-02"))
}

func (t *PersistentTrail) openFile() error {
	name := t.currentFilename()
	path := filepath.Join(t.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit trail file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit trail file: %w", err)
	}
	t.currentFile = file
	t.currentName = name
	t.writer = bufio.NewWriter(file)
	t.bytesWritten = stat.Size()
	return nil
}

// loadLastHash resumes the chain from the final entry of the open file.
func (t *PersistentTrail) loadLastHash() error {
	path := filepath.Join(t.dir, t.currentName)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	last := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var chained ChainedEvent
		if err := json.Unmarshal(scanner.Bytes(), &chained); err != nil {
			return err
		}
		last = chained.EventHash
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	t.lastHash = last
	return nil
}

func (t *PersistentTrail) shouldRotate() bool {
	if t.rotationSize > 0 && t.bytesWritten >= t.rotationSize {
		return true
	}
	return t.currentName != t.currentFilename()
}

// rotate closes the current file and opens the next. The hash chain
// continues across the boundary.
func (t *PersistentTrail) rotate() error {
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush before rotation: %w", err)
	}
	if err := t.currentFile.Close(); err != nil {
		return fmt.Errorf("close before rotation: %w", err)
	}

	if t.currentName == t.currentFilename() {
		// Size-based rotation within the same day keeps a sequence suffix
		rotated := fmt.Sprintf("audit-%s-%d.jsonl", time.Now().Format("2006-01-02"), time.Now().UnixNano())
		if err := os.Rename(filepath.Join(t.dir, t.currentName), filepath.Join(t.dir, rotated)); err != nil {
			return fmt.Errorf("rename rotated trail: %w", err)
		}
	}
	return t.openFile()
}
