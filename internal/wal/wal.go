// Package wal provides a per-partition write-ahead log so appends are
// acknowledged only once stably on disk.
package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/stayridge/stayridge/pkg/types"
)

// Log is the write-ahead log for a single partition. Each partition owns
// exactly one Log; appends to it are serialized by the partition's writer.
type Log struct {
	dir        string
	segment    *os.File
	segmentID  uint64
	offset     int64
	maxSegSize int64
	currentLSN uint64
	syncAppend bool
	mu         sync.Mutex
}

// Entry is a single logged append.
type Entry struct {
	LSN       uint64         `json:"lsn"`
	RecordID  types.RecordID `json:"record_id"`
	Record    types.Record   `json:"record"`
	Timestamp int64          `json:"timestamp"`
}

// Open opens (or creates) the log for one partition under dir.
func Open(dir string, maxSegSize int64, syncAppend bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: failed to create directory: %w", err)
	}

	l := &Log{
		dir:        dir,
		maxSegSize: maxSegSize,
		syncAppend: syncAppend,
	}

	if err := l.findLastSegment(); err != nil {
		return nil, err
	}

	if err := l.openSegment(); err != nil {
		return nil, err
	}

	return l, nil
}

// findLastSegment finds the highest segment ID and last LSN from existing files.
func (l *Log) findLastSegment() error {
	files, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("wal: failed to read directory: %w", err)
	}

	var lastSegmentID uint64
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		id, ok := parseSegmentName(file.Name())
		if ok && id >= lastSegmentID {
			lastSegmentID = id
		}
	}
	l.segmentID = lastSegmentID

	segmentPath := l.segmentPath(lastSegmentID)
	if _, err := os.Stat(segmentPath); os.IsNotExist(err) {
		return nil
	}

	entries, err := readSegment(segmentPath)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		l.currentLSN = entries[len(entries)-1].LSN
	}

	return nil
}

// openSegment opens the current segment file for appending.
func (l *Log) openSegment() error {
	file, err := os.OpenFile(l.segmentPath(l.segmentID), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("wal: failed to open segment: %w", err)
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return fmt.Errorf("wal: failed to seek segment: %w", err)
	}

	l.segment = file
	l.offset = offset
	return nil
}

func (l *Log) segmentPath(id uint64) string {
	return filepath.Join(l.dir, fmt.Sprintf("wal_%016x.log", id))
}

func parseSegmentName(name string) (uint64, bool) {
	if len(name) != 24 || name[:4] != "wal_" || name[20:] != ".log" {
		return 0, false
	}
	var id uint64
	if _, err := fmt.Sscanf(name[4:20], "%016x", &id); err != nil {
		return 0, false
	}
	return id, true
}

// Append logs a stored record and returns its LSN. The payload is
// snappy-compressed and checksummed with murmur3; the call returns only after
// the frame is written (and fsynced when sync-on-append is enabled).
func (l *Log) Append(id types.RecordID, record types.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentLSN++
	entry := Entry{
		LSN:       l.currentLSN,
		RecordID:  id,
		Record:    record,
		Timestamp: time.Now().UnixNano(),
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		return 0, fmt.Errorf("wal: failed to serialize entry: %w", err)
	}
	payload := snappy.Encode(nil, raw)

	if err := l.writeFrame(payload); err != nil {
		return 0, err
	}

	return entry.LSN, nil
}

// writeFrame writes [length:4][murmur3:4][payload:length] to the segment.
func (l *Log) writeFrame(payload []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], murmur3.Sum32(payload))

	if _, err := l.segment.Write(header[:]); err != nil {
		return fmt.Errorf("wal: failed to write frame header: %w", err)
	}
	if _, err := l.segment.Write(payload); err != nil {
		return fmt.Errorf("wal: failed to write payload: %w", err)
	}

	if l.syncAppend {
		if err := l.segment.Sync(); err != nil {
			return fmt.Errorf("wal: failed to fsync: %w", err)
		}
	}

	l.offset += int64(8 + len(payload))

	if l.offset >= l.maxSegSize {
		if err := l.rotateSegment(); err != nil {
			return err
		}
	}

	return nil
}

// rotateSegment closes the current segment and opens the next one.
func (l *Log) rotateSegment() error {
	if l.segment != nil {
		if err := l.segment.Close(); err != nil {
			return fmt.Errorf("wal: failed to close segment: %w", err)
		}
	}
	l.segmentID++
	return l.openSegment()
}

// CurrentLSN returns the LSN of the most recent append.
func (l *Log) CurrentLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLSN
}

// Close fsyncs and closes the current segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.segment != nil {
		if err := l.segment.Sync(); err != nil {
			return fmt.Errorf("wal: failed to fsync on close: %w", err)
		}
		if err := l.segment.Close(); err != nil {
			return fmt.Errorf("wal: failed to close segment: %w", err)
		}
		l.segment = nil
	}
	return nil
}

// readSegment reads all intact entries from one segment file. A torn final
// frame (partial write from a crash) ends the segment without error; a
// checksum mismatch mid-segment is corruption and fails.
func readSegment(path string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: failed to open segment: %w", err)
	}
	defer file.Close()

	var entries []*Entry
	for {
		var header [8]byte
		if _, err := io.ReadFull(file, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("wal: failed to read frame header: %w", err)
		}

		length := binary.LittleEndian.Uint32(header[0:4])
		sum := binary.LittleEndian.Uint32(header[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(file, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("wal: failed to read payload: %w", err)
		}

		if murmur3.Sum32(payload) != sum {
			return nil, fmt.Errorf("wal: checksum mismatch in %s", filepath.Base(path))
		}

		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("wal: failed to decompress entry: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("wal: failed to decode entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}
