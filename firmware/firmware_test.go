package firmware

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feig "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/packets/feig/tlv"
	"github.com/EVerest/zvt/transport"
	"github.com/EVerest/zvt/zvterr"
)

type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func writeGzip(t *testing.T, path string, contents []byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := gzip.NewWriter(f)
	if _, err := w.Write(contents); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestScanDirFindsKnownFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app1"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeGzip(t, filepath.Join(root, "app1", "update.tar.gz"), []byte("payload"))
	if err := os.WriteFile(filepath.Join(root, "app1", "update.spec"), []byte(`{"version":"2.0.12"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := scanDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestScanDirErrorsOnEmptyDirectory(t *testing.T) {
	if _, err := scanDir(t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory with no known files")
	}
}

func TestValidateGzipRejectsCorruptFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "broken.gz")
	if err := os.WriteFile(path, []byte("not a gzip stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validateGzip(path); err == nil {
		t.Fatal("expected an error for a corrupt gzip file")
	}
}

func TestDesiredVersionReadsUpdateSpec(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app1", "update.spec"), []byte(`{"version":"2.0.12"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cache, err := NewSpecCache()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DesiredVersion(cache, root)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2.0.12" {
		t.Fatalf("got version %q, want 2.0.12", got)
	}
}

func TestUpdateServesRequestedChunkThenCompletes(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app1"), 0o755); err != nil {
		t.Fatal(err)
	}
	contents := []byte("firmware bytes")
	if err := os.WriteFile(filepath.Join(root, "app1", "update.spec"), contents, 0o644); err != nil {
		t.Fatal(err)
	}

	fileID := uint8(0x22)
	offset := uint32(0)
	request, err := packet.Serialize(&feig.RequestForData{Tlv: &tlv.WriteData{
		File: &tlv.File{FileID: &fileID, FileOffset: &offset},
	}})
	if err != nil {
		t.Fatal(err)
	}
	status := uint8(0x00)
	complete, err := packet.Serialize(&packets.CompletionData{StatusByte: &status})
	if err != nil {
		t.Fatal(err)
	}

	in := append([]byte{0x80, 0x00, 0x00}, request...)
	in = append(in, complete...)
	lb := &loopback{in: bytes.NewBuffer(in), out: &bytes.Buffer{}}
	stream := transport.New(lb)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Update(ctx, stream, root, 123456, DefaultChunkSize); err != nil {
		t.Fatal(err)
	}
}

func newRespondFixture(t *testing.T) (*transport.Stream, map[uint8]entry) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "app1"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "app1", "update.spec")
	if err := os.WriteFile(path, []byte("firmware bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	lb := &loopback{in: &bytes.Buffer{}, out: &bytes.Buffer{}}
	byFileID := map[uint8]entry{0x22: {id: 0x22, path: path, size: 14}}
	return transport.New(lb), byFileID
}

func TestRespondRejectsMissingFileOffsetInsteadOfDefaultingToZero(t *testing.T) {
	stream, byFileID := newRespondFixture(t)
	fileID := uint8(0x22)
	req := &feig.RequestForData{Tlv: &tlv.WriteData{File: &tlv.File{FileID: &fileID}}}

	err := respond(stream, req, byFileID, make([]byte, DefaultChunkSize))
	if !errors.Is(err, zvterr.New(zvterr.IncompleteData)) {
		t.Fatalf("got %v, want IncompleteData", err)
	}
}

func TestRespondRejectsUnknownFileID(t *testing.T) {
	stream, byFileID := newRespondFixture(t)
	fileID := uint8(0xff)
	offset := uint32(0)
	req := &feig.RequestForData{Tlv: &tlv.WriteData{File: &tlv.File{FileID: &fileID, FileOffset: &offset}}}

	err := respond(stream, req, byFileID, make([]byte, DefaultChunkSize))
	if !errors.Is(err, zvterr.New(zvterr.IncompleteData)) {
		t.Fatalf("got %v, want IncompleteData", err)
	}
}

func TestRespondRejectsMissingFile(t *testing.T) {
	stream, byFileID := newRespondFixture(t)
	req := &feig.RequestForData{Tlv: &tlv.WriteData{}}

	err := respond(stream, req, byFileID, make([]byte, DefaultChunkSize))
	if !errors.Is(err, zvterr.New(zvterr.IncompleteData)) {
		t.Fatalf("got %v, want IncompleteData", err)
	}
}
