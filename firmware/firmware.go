// Package firmware implements the Feig cVEND firmware transfer dialog: the
// ECR announces a set of files and their sizes, then answers the PT's
// RequestForData pulls with WriteData chunks until the PT reports
// CompletionData or Abort.
package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/klauspost/compress/gzip"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feig "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/packets/feig/tlv"
	"github.com/EVerest/zvt/transport"
	"github.com/EVerest/zvt/zvtconst"
	"github.com/EVerest/zvt/zvterr"
	"github.com/EVerest/zvt/zvtlog"
)

// DefaultChunkSize is the WriteData payload size the feig controller
// passes to Update. Update itself falls back to zvtconst.MaxAdpuPayload,
// not to this value, when it is given a zero size.
const DefaultChunkSize = 1 << 15

// fileIDs maps the fixed relative paths a firmware payload directory may
// contain to the file id the PT expects in a WriteFile/RequestForData
// exchange. Only files actually present under the payload directory are
// announced.
var fileIDs = map[string]uint8{
	"firmware/kernel.gz":             0x10,
	"firmware/rootfs.gz":             0x11,
	"firmware/components.tar.gz":     0x12,
	"firmware/update.spec":           0x13,
	"firmware/update_extended.spec":  0x14,
	"app0/update.spec":               0x20,
	"app0/update.tar.gz":             0x21,
	"app1/update.spec":               0x22,
	"app1/update.tar.gz":             0x23,
	"app2/update.spec":               0x24,
	"app2/update.tar.gz":             0x25,
	"app3/update.spec":               0x26,
	"app3/update.tar.gz":             0x27,
	"app4/update.spec":               0x28,
	"app4/update.tar.gz":             0x29,
	"app5/update.spec":               0x30,
	"app5/update.tar.gz":             0x31,
	"app6/update.spec":               0x32,
	"app6/update.tar.gz":             0x33,
	"app7/update.spec":               0x34,
	"app7/update.tar.gz":             0x35,
}

// entry is one file from a payload directory resolved against fileIDs.
type entry struct {
	id   uint8
	path string
	size int64
}

// scanDir walks the fixed relative paths fileIDs knows about and returns
// the ones actually present under root. It errors if none are found,
// since an empty directory listing can't start a meaningful update.
func scanDir(root string) ([]entry, error) {
	var found []entry
	for rel, id := range fileIDs {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		found = append(found, entry{id: id, path: abs, size: info.Size()})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("firmware: %s contains none of the known update files", root)
	}
	return found, nil
}

// byID indexes entries by file id for RequestForData lookups during the
// transfer loop.
func byID(entries []entry) map[uint8]entry {
	m := make(map[uint8]entry, len(entries))
	for _, e := range entries {
		m[e.id] = e
	}
	return m
}

var updateCandidates = []struct {
	class, instr byte
	new          func() packet.Command
}{
	{0x06, 0x0f, func() packet.Command { return &packets.CompletionData{} }},
	{0x04, 0x0c, func() packet.Command { return &feig.RequestForData{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

func decodeUpdateReply(data []byte) (packet.Command, error) {
	if len(data) < 2 {
		return nil, zvterr.New(zvterr.IncompleteData)
	}
	for _, c := range updateCandidates {
		if data[0] == c.class && data[1] == c.instr {
			cmd := c.new()
			if _, err := packet.Deserialize(cmd, data); err != nil {
				return nil, err
			}
			return cmd, nil
		}
	}
	return nil, zvterr.NewWrongTag(uint16(data[0])<<8 | uint16(data[1]))
}

// validateGzip confirms a *.gz payload decompresses as a well-formed gzip
// stream before it is offered to the PT, catching a truncated or corrupt
// build artifact before burning an entire transfer on it.
func validateGzip(path string) error {
	if !strings.HasSuffix(path, ".gz") {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("firmware: %s is not a valid gzip stream: %w", path, err)
	}
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	if err != nil {
		return fmt.Errorf("firmware: %s failed gzip validation: %w", path, err)
	}
	return nil
}

// checksum logs an xxhash of a file's contents ahead of transfer, useful
// for matching a transfer attempt to the payload build that produced it.
func checksum(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Update runs the firmware file transfer dialog against root, a payload
// directory laid out with the fixed relative paths fileIDs recognizes. It
// blocks until the PT reports CompletionData, Abort, or the stream
// errors. adpuSize bounds each WriteData reply's payload; zero or a value
// over zvtconst.MaxAdpuPayload is clamped to zvtconst.MaxAdpuPayload.
func Update(ctx context.Context, stream *transport.Stream, root string, password uint64, adpuSize uint32) error {
	entries, err := scanDir(root)
	if err != nil {
		return err
	}
	byFileID := byID(entries)

	files := make([]tlv.File, len(entries))
	for i, e := range entries {
		if err := validateGzip(e.path); err != nil {
			return err
		}
		id := e.id
		size := uint32(e.size)
		sum, err := checksum(e.path)
		if err != nil {
			return err
		}
		zvtlog.Log.Infof("firmware: offering %s (id=0x%02x, size=%d, xxhash=%x)", e.path, e.id, e.size, sum)
		files[i] = tlv.File{FileID: &id, FileSize: &size}
	}

	announce := &feig.WriteFile{Password: password, Tlv: &tlv.WriteFile{Files: files}}
	if err := transport.SendCommand(stream, announce); err != nil {
		return err
	}

	if adpuSize == 0 || adpuSize > zvtconst.MaxAdpuPayload {
		adpuSize = zvtconst.MaxAdpuPayload
	}
	buf := make([]byte, adpuSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := stream.ReadPacketWithAck()
		if err != nil {
			return err
		}
		cmd, err := decodeUpdateReply(frame)
		if err != nil {
			return err
		}

		switch reply := cmd.(type) {
		case *packets.CompletionData:
			zvtlog.Log.Info("firmware: transfer complete")
			return nil
		case *packets.Abort:
			return zvterr.NewAborted(reply.Error)
		case *feig.RequestForData:
			if err := respond(stream, reply, byFileID, buf); err != nil {
				return err
			}
		}
	}
}

// respond answers one RequestForData pull by reading the requested chunk
// off disk and writing it back as a WriteData reply. This reply is not
// ack-waited: the PT's next message in the loop is either another
// RequestForData or the dialog's terminal reply. A RequestForData missing
// its tlv, file, file id or file offset, or naming a file id outside
// byFileID, is IncompleteData — matching the original, which never
// defaults a missing offset to 0.
func respond(stream *transport.Stream, req *feig.RequestForData, byFileID map[uint8]entry, buf []byte) error {
	if req.Tlv == nil || req.Tlv.File == nil || req.Tlv.File.FileID == nil || req.Tlv.File.FileOffset == nil {
		return zvterr.New(zvterr.IncompleteData)
	}
	file := req.Tlv.File
	e, ok := byFileID[*file.FileID]
	if !ok {
		return zvterr.New(zvterr.IncompleteData)
	}
	offset := int64(*file.FileOffset)

	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return err
	}

	id := *file.FileID
	reqOffset := *file.FileOffset
	reply := &feig.WriteData{Tlv: &tlv.WriteData{File: &tlv.File{
		FileID:     &id,
		FileOffset: &reqOffset,
		Payload:    buf[:n],
	}}}
	frame, err := packet.Serialize(reply)
	if err != nil {
		return err
	}
	return stream.WritePacket(frame)
}

// DesiredVersion reads the "version" field out of payloadDir/app1/update.spec,
// the file the controller compares a terminal's reported firmware
// version against before starting a transfer.
func DesiredVersion(cache *lru.Cache, payloadDir string) (string, error) {
	if cache != nil {
		if v, ok := cache.Get(payloadDir); ok {
			return v.(string), nil
		}
	}

	path := filepath.Join(payloadDir, filepath.FromSlash("app1/update.spec"))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var spec struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return "", err
	}
	if cache != nil {
		cache.Add(payloadDir, spec.Version)
	}
	return spec.Version, nil
}

// NewSpecCache returns a bounded cache of parsed update.spec "version"
// fields, sized for the handful of payload directories a long-running
// controller process might update from over its lifetime.
func NewSpecCache() (*lru.Cache, error) {
	return lru.New(32)
}
