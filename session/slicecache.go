package session

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/voxedit/voxedit"
)

// SliceAxis names the three orthogonal slice orientations renderers pull.
type SliceAxis uint8

const (
	XY SliceAxis = iota // fixed z
	XZ                  // fixed y
	YZ                  // fixed x
)

// SliceCache holds recently extracted orthogonal slices so repeated renders
// of an unchanged plane skip the volume walk.  Committed operations
// invalidate just the planes crossing their touched extent; undo and redo
// clear the cache outright since their reach isn't tracked.
type SliceCache struct {
	cache    *freecache.Cache
	attempts uint64
	hits     uint64
}

func newSliceCache(megabytes int) *SliceCache {
	return &SliceCache{cache: freecache.NewCache(megabytes << 20)}
}

func sliceKey(axis SliceAxis, idx int32) []byte {
	k := make([]byte, 5)
	k[0] = byte(axis)
	binary.LittleEndian.PutUint32(k[1:], uint32(idx))
	return k
}

func (c *SliceCache) get(axis SliceAxis, idx int32) []uint64 {
	if c == nil {
		return nil
	}
	atomic.AddUint64(&c.attempts, 1)
	b, err := c.cache.Get(sliceKey(axis, idx))
	if err != nil {
		if err != freecache.ErrNotFound {
			voxedit.Errorf("slice cache get: %v\n", err)
		}
		return nil
	}
	atomic.AddUint64(&c.hits, 1)
	vals := make([]uint64, len(b)/8)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return vals
}

func (c *SliceCache) put(axis SliceAxis, idx int32, vals []uint64) {
	if c == nil {
		return
	}
	b := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	if err := c.cache.Set(sliceKey(axis, idx), b, 0); err != nil {
		// Oversized entries just stay uncached.
		voxedit.Debugf("slice cache set for axis %d plane %d: %v\n", axis, idx, err)
	}
}

// invalidateExtent drops every cached plane crossing the given extent.
func (c *SliceCache) invalidateExtent(ext voxedit.Extents3d) {
	if c == nil || ext.Empty() {
		return
	}
	for z := ext.MinPoint[2]; z <= ext.MaxPoint[2]; z++ {
		c.cache.Del(sliceKey(XY, z))
	}
	for y := ext.MinPoint[1]; y <= ext.MaxPoint[1]; y++ {
		c.cache.Del(sliceKey(XZ, y))
	}
	for x := ext.MinPoint[0]; x <= ext.MaxPoint[0]; x++ {
		c.cache.Del(sliceKey(YZ, x))
	}
}

func (c *SliceCache) clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

// CacheStats reports slice cache effectiveness.
type CacheStats struct {
	Attempts uint64
	Hits     uint64
	Entries  int64
}

// GetCacheStats returns slice cache counters, all zero when the cache is
// disabled.  Background-safe.
func (s *Session) GetCacheStats() CacheStats {
	c := s.cache
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Attempts: atomic.LoadUint64(&c.attempts),
		Hits:     atomic.LoadUint64(&c.hits),
		Entries:  c.cache.EntryCount(),
	}
}

// SliceXY returns a copy of the plane at the given z, row-major in x then y.
// Served from the slice cache when possible.  Background-safe.
func (s *Session) SliceXY(z int32) []uint64 {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if vals := s.cache.get(XY, z); vals != nil {
		return vals
	}
	size := s.table.GridSize()
	vals := make([]uint64, int64(size[0])*int64(size[1]))
	copy(vals, s.table.ZSlice(z))
	s.cache.put(XY, z, vals)
	return vals
}

// SliceXZ returns a copy of the plane at the given y, row-major in x then z.
// Background-safe.
func (s *Session) SliceXZ(y int32) []uint64 {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if vals := s.cache.get(XZ, y); vals != nil {
		return vals
	}
	size := s.table.GridSize()
	nx := int64(size[0])
	vals := make([]uint64, nx*int64(size[2]))
	for z := int32(0); z < size[2]; z++ {
		row := s.table.ZSlice(z)[int64(y)*nx : (int64(y)+1)*nx]
		copy(vals[int64(z)*nx:], row)
	}
	s.cache.put(XZ, y, vals)
	return vals
}

// SliceYZ returns a copy of the plane at the given x, row-major in y then z.
// Background-safe.
func (s *Session) SliceYZ(x int32) []uint64 {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if vals := s.cache.get(YZ, x); vals != nil {
		return vals
	}
	size := s.table.GridSize()
	nx, ny := int64(size[0]), int64(size[1])
	vals := make([]uint64, ny*int64(size[2]))
	for z := int32(0); z < size[2]; z++ {
		slice := s.table.ZSlice(z)
		for y := int64(0); y < ny; y++ {
			vals[int64(z)*ny+y] = slice[y*nx+int64(x)]
		}
	}
	s.cache.put(YZ, x, vals)
	return vals
}
