package wal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Replay reads every segment under dir in LSN order and calls fn for each
// intact entry. It is used on restart to rebuild a partition's in-memory
// store and indexes. Replaying an empty or missing directory is a no-op.
func Replay(dir string, fn func(*Entry) error) (int, error) {
	startTime := time.Now()

	segmentFiles, err := listSegmentFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(segmentFiles) == 0 {
		return 0, nil
	}

	var count int
	var lastLSN uint64
	for _, segmentPath := range segmentFiles {
		entries, err := readSegment(segmentPath)
		if err != nil {
			return count, fmt.Errorf("wal: replay of %s failed: %w", filepath.Base(segmentPath), err)
		}

		for _, entry := range entries {
			if entry.LSN <= lastLSN {
				// Duplicate from an interrupted rotation; skip.
				continue
			}
			if err := fn(entry); err != nil {
				return count, err
			}
			lastLSN = entry.LSN
			count++
		}
	}

	log.Printf("wal: replayed %d entries from %s in %v", count, dir, time.Since(startTime))
	return count, nil
}

// Remove deletes a partition's entire WAL directory. Called when the
// partition is retired after its segment has been archived.
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("wal: failed to remove directory: %w", err)
	}
	return nil
}

// listSegmentFiles lists segment files sorted lexicographically, which is
// also chronological for the wal_%016x naming scheme.
func listSegmentFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: failed to read directory: %w", err)
	}

	var segmentFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if _, ok := parseSegmentName(file.Name()); ok {
			segmentFiles = append(segmentFiles, filepath.Join(dir, file.Name()))
		}
	}

	sort.Strings(segmentFiles)
	return segmentFiles, nil
}
