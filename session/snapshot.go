package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/voxedit/labelgrid"
	"github.com/janelia-flyem/voxedit/labeltable"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// snapshotFormatVersion gates snapshot compatibility: loaders accept any
// snapshot sharing their major version.
const snapshotFormatVersion = "1.0.0"

// slabZSize is the number of z planes compressed together.  Slabs compress
// and decompress in parallel, so this also sets the parallel grain.
const slabZSize = 16

var snapshotSemVer semver.Version

func init() {
	ver, err := semver.Make(snapshotFormatVersion)
	if err != nil {
		voxedit.Errorf("Unable to make semver for snapshot format: %v\n", err)
	}
	snapshotSemVer = ver
}

// snapshotHeader is the gob-encoded leading block of a snapshot: everything
// but the voxels.  Entries are in dense index order, so the label index of
// an entry is its position.
type snapshotHeader struct {
	Format    string
	SessionID string
	SavedUnix int64
	Size      voxedit.Point3d
	SlabZSize int32
	NumSlabs  int32
	Entries   []labeltable.ObjectEntry
	Colors    []labeltable.Color
	Selected  []labeltable.LabelIndex
}

// WriteSnapshot writes the full session state: volume, object entries,
// colors, and selection.  Undo history is deliberately not persisted; it is
// session-lifetime state.  Background-safe.
func (s *Session) WriteSnapshot(w io.Writer) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.writeSnapshot(w)
}

// writeSnapshot assumes the edit lock is held.
func (s *Session) writeSnapshot(w io.Writer) error {
	size := s.table.GridSize()
	numSlabs := (size[2] + slabZSize - 1) / slabZSize

	header := snapshotHeader{
		Format:    snapshotFormatVersion,
		SessionID: s.id,
		SavedUnix: time.Now().Unix(),
		Size:      size,
		SlabZSize: slabZSize,
		NumSlabs:  numSlabs,
		Entries:   make([]labeltable.ObjectEntry, s.table.NumLabels()),
		Colors:    s.table.Colors(),
		Selected:  s.table.Selected(),
	}
	for i := range header.Entries {
		header.Entries[i], _ = s.table.Entry(labeltable.LabelIndex(i))
	}
	headerBytes, err := voxedit.Serialize(header, voxedit.Snappy, voxedit.CRC32)
	if err != nil {
		return fmt.Errorf("can't serialize snapshot header: %v", err)
	}
	if err := writeBlock(w, headerBytes); err != nil {
		return err
	}

	// Slabs compress concurrently; grid reads are safe under the held
	// edit lock.  Writes stay in z order.
	slabs := make([][]byte, numSlabs)
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	sliceLen := int64(size[0]) * int64(size[1])
	for i := int32(0); i < numSlabs; i++ {
		slab := i
		g.Go(func() error {
			zBegin := slab * slabZSize
			zEnd := zBegin + slabZSize
			if zEnd > size[2] {
				zEnd = size[2]
			}
			raw := make([]byte, int64(zEnd-zBegin)*sliceLen*8)
			off := 0
			for z := zBegin; z < zEnd; z++ {
				for _, v := range s.table.ZSlice(z) {
					binary.LittleEndian.PutUint64(raw[off:], v)
					off += 8
				}
			}
			compressed, err := voxedit.SerializeData(raw, voxedit.Snappy, voxedit.CRC32)
			if err != nil {
				return fmt.Errorf("can't serialize snapshot slab %d: %v", slab, err)
			}
			slabs[slab] = compressed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, slab := range slabs {
		if err := writeBlock(w, slab); err != nil {
			return err
		}
	}
	return nil
}

// ReadSnapshot reconstitutes a session from a snapshot stream.  The session
// keeps its saved identifier; its undo history starts empty.
func ReadSnapshot(r io.Reader, cfg *Config) (*Session, error) {
	headerBytes, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("can't read snapshot header: %v", err)
	}
	var header snapshotHeader
	if err := voxedit.Deserialize(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("can't deserialize snapshot header: %v", err)
	}
	ver, err := semver.Make(header.Format)
	if err != nil {
		return nil, fmt.Errorf("bad snapshot format version %q: %v", header.Format, err)
	}
	if ver.Major != snapshotSemVer.Major {
		return nil, fmt.Errorf("snapshot format %s incompatible with supported %s", ver, snapshotSemVer)
	}
	if header.SlabZSize <= 0 {
		return nil, fmt.Errorf("bad snapshot slab size %d", header.SlabZSize)
	}

	grid, err := labelgrid.NewGrid(header.Size)
	if err != nil {
		return nil, fmt.Errorf("bad snapshot volume size: %v", err)
	}

	// Read sequentially, then decompress slabs in parallel into disjoint
	// z ranges of the fresh grid.
	compressed := make([][]byte, header.NumSlabs)
	for i := range compressed {
		if compressed[i], err = readBlock(r); err != nil {
			return nil, fmt.Errorf("can't read snapshot slab %d: %v", i, err)
		}
	}
	sliceLen := int64(header.Size[0]) * int64(header.Size[1])
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range compressed {
		slab := i
		g.Go(func() error {
			raw, _, err := voxedit.DeserializeData(compressed[slab], true)
			if err != nil {
				return fmt.Errorf("can't deserialize snapshot slab %d: %v", slab, err)
			}
			zBegin := int32(slab) * header.SlabZSize
			zEnd := zBegin + header.SlabZSize
			if zEnd > header.Size[2] {
				zEnd = header.Size[2]
			}
			if int64(len(raw)) != int64(zEnd-zBegin)*sliceLen*8 {
				return fmt.Errorf("snapshot slab %d holds %d bytes, expected %d",
					slab, len(raw), int64(zEnd-zBegin)*sliceLen*8)
			}
			vals := make([]uint64, sliceLen)
			off := 0
			for z := zBegin; z < zEnd; z++ {
				for i := range vals {
					vals[i] = binary.LittleEndian.Uint64(raw[off:])
					off += 8
				}
				if err := grid.SetZSlice(z, vals); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table, err := labeltable.Restore(grid, header.Entries, header.Colors, header.Selected)
	if err != nil {
		return nil, fmt.Errorf("can't restore label table: %v", err)
	}
	return newSession(table, cfg, header.SessionID)
}

// SaveSnapshotFile writes a snapshot to path, replacing it atomically.
// Background-safe.
func (s *Session) SaveSnapshotFile(path string) error {
	tlog := voxedit.NewTimeLog()
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if err := s.WriteSnapshot(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	var written uint64
	if info, err := os.Stat(path); err == nil {
		written = uint64(info.Size())
	}
	tlog.Infof("Saved session %s snapshot to %s (%s)", s.id, path, humanize.Bytes(written))
	return nil
}

// LoadSnapshotFile reconstitutes a session from a snapshot file.
func LoadSnapshotFile(path string, cfg *Config) (*Session, error) {
	tlog := voxedit.NewTimeLog()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSnapshot(f, cfg)
	if err != nil {
		return nil, err
	}
	tlog.Infof("Loaded session %s snapshot from %s", s.id, path)
	return s, nil
}

// ReadSnapshotHeader returns the metadata block of a snapshot file without
// loading its voxels.
func ReadSnapshotHeader(path string) (id string, saved time.Time, size voxedit.Point3d, numLabels int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	headerBytes, err := readBlock(f)
	if err != nil {
		return
	}
	var header snapshotHeader
	if err = voxedit.Deserialize(headerBytes, &header); err != nil {
		return
	}
	return header.SessionID, time.Unix(header.SavedUnix, 0), header.Size, len(header.Entries), nil
}

func writeBlock(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// snapshotBytes serializes the session to memory for the autosave store.
// Assumes the edit lock is held.
func (s *Session) snapshotBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.writeSnapshot(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
