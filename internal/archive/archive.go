// Package archive materializes a retired partition's records into a compact
// segment file and moves it to object storage. Archived partitions leave the
// query path entirely; the segment exists for compliance reads and reloads.
package archive

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/partition"
	"github.com/stayridge/stayridge/internal/storage"
	"github.com/stayridge/stayridge/pkg/types"
)

// Entry is one archived record.
type Entry struct {
	RecordID types.RecordID `json:"record_id"`
	Record   types.Record   `json:"record"`
}

// header describes the archived partition, written as the segment's first
// frame.
type header struct {
	PartitionID string       `json:"partition_id"`
	Bounds      types.Bounds `json:"bounds"`
	RecordCount int          `json:"record_count"`
}

// Archiver writes retired partitions to object storage.
type Archiver struct {
	store   storage.ObjectStorage
	workDir string
}

// NewArchiver creates an archiver that stages segments under workDir before
// uploading them.
func NewArchiver(store storage.ObjectStorage, workDir string) *Archiver {
	return &Archiver{store: store, workDir: workDir}
}

// ObjectPath returns the archive location for a partition.
func ObjectPath(partitionID string) string {
	return "archive/" + partitionID + ".seg"
}

// Archive materializes the partition's records into a segment and uploads
// it. Returns the object path recorded in the catalog.
func (a *Archiver) Archive(ctx context.Context, p *partition.Partition) (string, error) {
	if err := os.MkdirAll(a.workDir, 0755); err != nil {
		return "", serrors.NewInternalError("failed to create archive staging directory", err)
	}

	local := filepath.Join(a.workDir, p.ID()+".seg")
	if err := writeSegment(local, p); err != nil {
		return "", err
	}
	defer os.Remove(local)

	objectPath := ObjectPath(p.ID())
	if err := a.store.Upload(ctx, local, objectPath); err != nil {
		return "", serrors.Wrap(serrors.ErrCategoryStorage, serrors.CodeAppendFailed,
			fmt.Sprintf("failed to upload archive for partition %s", p.ID()), err)
	}
	return objectPath, nil
}

// writeSegment writes the header frame followed by one frame per record.
// Frames reuse the log format: length, murmur3 checksum, snappy payload.
func writeSegment(path string, p *partition.Partition) error {
	file, err := os.Create(path)
	if err != nil {
		return serrors.NewInternalError("failed to create archive segment", err)
	}
	defer file.Close()

	entries := p.Store().Scan()
	h := header{PartitionID: p.ID(), Bounds: p.Bounds(), RecordCount: len(entries)}
	if err := writeFrame(file, h); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeFrame(file, Entry{RecordID: e.ID, Record: e.Record}); err != nil {
			return err
		}
	}
	return file.Sync()
}

func writeFrame(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return serrors.NewInternalError("failed to encode archive frame", err)
	}
	payload := snappy.Encode(nil, raw)

	var head [8]byte
	binary.LittleEndian.PutUint32(head[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(head[4:8], murmur3.Sum32(payload))

	if _, err := w.Write(head[:]); err != nil {
		return serrors.NewInternalError("failed to write archive frame", err)
	}
	if _, err := w.Write(payload); err != nil {
		return serrors.NewInternalError("failed to write archive frame", err)
	}
	return nil
}

// ReadSegment downloads and decodes an archived partition. Unlike the log,
// an archive segment is written in one pass, so any short or corrupt frame
// is an error.
func (a *Archiver) ReadSegment(ctx context.Context, objectPath string) (types.Bounds, []Entry, error) {
	if err := os.MkdirAll(a.workDir, 0755); err != nil {
		return types.Bounds{}, nil, serrors.NewInternalError("failed to create archive staging directory", err)
	}

	local := filepath.Join(a.workDir, filepath.Base(objectPath))
	if err := a.store.Download(ctx, objectPath, local); err != nil {
		return types.Bounds{}, nil, serrors.Wrap(serrors.ErrCategoryStorage, serrors.CodeRecordNotFound,
			fmt.Sprintf("failed to download archive %s", objectPath), err)
	}
	defer os.Remove(local)

	file, err := os.Open(local)
	if err != nil {
		return types.Bounds{}, nil, serrors.NewInternalError("failed to open archive segment", err)
	}
	defer file.Close()

	var h header
	if err := readFrame(file, &h); err != nil {
		return types.Bounds{}, nil, err
	}

	entries := make([]Entry, 0, h.RecordCount)
	for i := 0; i < h.RecordCount; i++ {
		var e Entry
		if err := readFrame(file, &e); err != nil {
			return types.Bounds{}, nil, err
		}
		entries = append(entries, e)
	}
	return h.Bounds, entries, nil
}

func readFrame(r io.Reader, v interface{}) error {
	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return serrors.NewInternalError("archive segment truncated", err)
	}
	length := binary.LittleEndian.Uint32(head[0:4])
	sum := binary.LittleEndian.Uint32(head[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return serrors.NewInternalError("archive segment truncated", err)
	}
	if murmur3.Sum32(payload) != sum {
		return serrors.NewInternalError("archive frame checksum mismatch", nil)
	}

	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return serrors.NewInternalError("failed to decompress archive frame", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return serrors.NewInternalError("failed to decode archive frame", err)
	}
	return nil
}
