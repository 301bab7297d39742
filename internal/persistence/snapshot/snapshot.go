// Package snapshot defines the persisted grid snapshot format: a JSON header
// line followed by a zstd-compressed gob body of (chunk key, cells) pairs.
// Chunks absent from a snapshot are implicitly default-valued on restore.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is the current snapshot format version.
const Version = 1

// ErrCorrupt reports a snapshot whose version or geometry cannot be
// restored. A failed restore never mutates existing grid state.
var ErrCorrupt = errors.New("snapshot corrupt")

type Header struct {
	Version    int    `json:"version"`
	Dims       int    `json:"dims"`
	AxisBits   int    `json:"axis_bits"`
	ChunkEdge  int    `json:"chunk_edge"`
	Stride     int    `json:"stride"`
	Generation uint64 `json:"generation"`
	Tick       uint64 `json:"tick"`
}

type ChunkV1 struct {
	Key   uint64
	Cells []float32
}

type SnapshotV1 struct {
	Header Header
	// Chunks are sorted by key.
	Chunks []ChunkV1
}

// Write serializes a snapshot: header as a JSON line (readable without
// decompressing the body), then the gob body under zstd.
func Write(w io.Writer, snap SnapshotV1) error {
	snap.Header.Version = Version
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(hb, '\n')); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// Read deserializes a snapshot, validating the header before touching the
// body.
func Read(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	br := bufio.NewReaderSize(r, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("%w: missing header: %v", ErrCorrupt, err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return snap, fmt.Errorf("%w: bad header: %v", ErrCorrupt, err)
	}
	if hdr.Version != Version {
		return snap, fmt.Errorf("%w: format version %d, want %d", ErrCorrupt, hdr.Version, Version)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	if err := gob.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("%w: gob decode: %v", ErrCorrupt, err)
	}
	snap.Header = hdr
	return snap, nil
}

// WriteFile writes a snapshot atomically: to a temp file first, renamed into
// place on success.
func WriteFile(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Write(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile reads a snapshot from disk.
func ReadFile(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Read(f)
}
