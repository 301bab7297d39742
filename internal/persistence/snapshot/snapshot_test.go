package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header: Header{
			Dims:       2,
			AxisBits:   4,
			ChunkEdge:  8,
			Stride:     1,
			Generation: 7,
			Tick:       9,
		},
		Chunks: []ChunkV1{
			{Key: 3, Cells: []float32{0, 1, 0, 2.5}},
			{Key: 17, Cells: []float32{-1, 0, 0, 0}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := sample()
	want.Header.Version = Version
	if got.Header != want.Header {
		t.Fatalf("header = %+v, want %+v", got.Header, want.Header)
	}
	if len(got.Chunks) != len(want.Chunks) {
		t.Fatalf("chunks = %d, want %d", len(got.Chunks), len(want.Chunks))
	}
	for i, ch := range got.Chunks {
		if ch.Key != want.Chunks[i].Key {
			t.Fatalf("chunk %d key = %d, want %d", i, ch.Key, want.Chunks[i].Key)
		}
		for j, v := range ch.Cells {
			if v != want.Chunks[i].Cells[j] {
				t.Fatalf("chunk %d cell %d = %g, want %g", i, j, v, want.Chunks[i].Cells[j])
			}
		}
	}
}

func TestHeaderReadableWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bytes.NewBuffer(buf.Bytes()).ReadString('\n')
	if err != nil {
		t.Fatalf("header line: %v", err)
	}
	var hdr Header
	if err := json.Unmarshal([]byte(line), &hdr); err != nil {
		t.Fatalf("header json: %v", err)
	}
	if hdr.Version != Version || hdr.Generation != 7 {
		t.Fatalf("header = %+v", hdr)
	}
}

func TestRead_Corrupt(t *testing.T) {
	var ok bytes.Buffer
	if err := Write(&ok, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	full := ok.Bytes()
	headerEnd := bytes.IndexByte(full, '\n') + 1

	futureHdr, _ := json.Marshal(Header{Version: Version + 1})

	cases := map[string][]byte{
		"empty":          nil,
		"no newline":     []byte(`{"version":1}`),
		"not json":       []byte("zstd magic goes here\n"),
		"future version": append(append([]byte{}, futureHdr...), '\n'),
		"truncated body": full[:headerEnd+4],
		"mangled body":   append(append([]byte{}, full[:headerEnd]...), []byte("not zstd at all")...),
	}
	for name, data := range cases {
		if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: want ErrCorrupt, got %v", name, err)
		}
	}
}

func TestWriteFile_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps", "g7.snap")
	if err := WriteFile(path, sample()); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if got.Header.Generation != 7 || len(got.Chunks) != 2 {
		t.Fatalf("read back %+v with %d chunks", got.Header, len(got.Chunks))
	}
	if strings.HasSuffix(path, ".tmp") {
		t.Fatalf("temp suffix leaked into path")
	}
	if _, err := ReadFile(path + ".tmp"); err == nil {
		t.Fatalf("temp file left behind")
	}
}
