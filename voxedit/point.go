package voxedit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Point3d is a 3d voxel coordinate, an ordered list of three 32-bit signed integers.
type Point3d [3]int32

// Bytes returns a byte representation of the Point3d in little endian format.
func (p Point3d) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, p[0])
	binary.Write(buf, binary.LittleEndian, p[1])
	binary.Write(buf, binary.LittleEndian, p[2])
	return buf.Bytes()
}

// PointFromBytes returns a Point3d from bytes written via Bytes().
func PointFromBytes(b []byte) (pt Point3d, err error) {
	buf := bytes.NewReader(b)
	if err = binary.Read(buf, binary.LittleEndian, &(pt[0])); err != nil {
		return
	}
	if err = binary.Read(buf, binary.LittleEndian, &(pt[1])); err != nil {
		return
	}
	err = binary.Read(buf, binary.LittleEndian, &(pt[2]))
	return
}

// SetMinimum sets the point to the minimum elements of current and passed points.
func (p *Point3d) SetMinimum(p2 Point3d) {
	if p[0] > p2[0] {
		p[0] = p2[0]
	}
	if p[1] > p2[1] {
		p[1] = p2[1]
	}
	if p[2] > p2[2] {
		p[2] = p2[2]
	}
}

// SetMaximum sets the point to the maximum elements of current and passed points.
func (p *Point3d) SetMaximum(p2 Point3d) {
	if p[0] < p2[0] {
		p[0] = p2[0]
	}
	if p[1] < p2[1] {
		p[1] = p2[1]
	}
	if p[2] < p2[2] {
		p[2] = p2[2]
	}
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Prod returns the product of the point elements, e.g., the number of voxels
// in a volume with this point as its size.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// Vector returns the point as a real-valued Vector3d.
func (p Point3d) Vector() Vector3d {
	return Vector3d{float64(p[0]), float64(p[1]), float64(p[2])}
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Vector3d is a 3d vector of 64-bit floats, the type used for centroids and
// other real-valued aggregates over voxel coordinates.
type Vector3d [3]float64

// Add returns the addition of two vectors.
func (v Vector3d) Add(x Vector3d) Vector3d {
	return Vector3d{v[0] + x[0], v[1] + x[1], v[2] + x[2]}
}

// Subtract returns the subtraction of the passed vector from the receiver.
func (v Vector3d) Subtract(x Vector3d) Vector3d {
	return Vector3d{v[0] - x[0], v[1] - x[1], v[2] - x[2]}
}

// MultScalar multiplies a vector by a float64.
func (v Vector3d) MultScalar(x float64) Vector3d {
	return Vector3d{v[0] * x, v[1] * x, v[2] * x}
}

// DivideScalar divides a vector by a float64.
func (v Vector3d) DivideScalar(x float64) Vector3d {
	return Vector3d{v[0] / x, v[1] / x, v[2] / x}
}

func (v Vector3d) String() string {
	return fmt.Sprintf("(%f,%f,%f)", v[0], v[1], v[2])
}

// Extents3d holds the axis-aligned bounds of a set of voxel coordinates.
// Bounds are grow-only: Extend never tightens MinPoint or MaxPoint, so after
// voxels are removed the extents may be larger than the true tight box.
type Extents3d struct {
	MinPoint Point3d
	MaxPoint Point3d

	initialized bool
}

// NewExtents3d returns extents initialized to the single point pt.
func NewExtents3d(pt Point3d) Extents3d {
	return Extents3d{MinPoint: pt, MaxPoint: pt, initialized: true}
}

// Empty returns true if no point has been added to the extents.
func (ext *Extents3d) Empty() bool {
	return !ext.initialized
}

// Extend grows the extents to include the given point.
func (ext *Extents3d) Extend(pt Point3d) {
	if !ext.initialized {
		ext.MinPoint = pt
		ext.MaxPoint = pt
		ext.initialized = true
		return
	}
	ext.MinPoint.SetMinimum(pt)
	ext.MaxPoint.SetMaximum(pt)
}

// ExtendExtents grows the extents to include another extents.  Empty extents
// are ignored.
func (ext *Extents3d) ExtendExtents(ext2 Extents3d) {
	if ext2.Empty() {
		return
	}
	if !ext.initialized {
		*ext = ext2
		return
	}
	ext.MinPoint.SetMinimum(ext2.MinPoint)
	ext.MaxPoint.SetMaximum(ext2.MaxPoint)
}

// Contains returns true if the given point falls within the extents.
func (ext *Extents3d) Contains(pt Point3d) bool {
	if !ext.initialized {
		return false
	}
	return pt[0] >= ext.MinPoint[0] && pt[0] <= ext.MaxPoint[0] &&
		pt[1] >= ext.MinPoint[1] && pt[1] <= ext.MaxPoint[1] &&
		pt[2] >= ext.MinPoint[2] && pt[2] <= ext.MaxPoint[2]
}

// Intersects returns true if the two extents share any voxel.
func (ext *Extents3d) Intersects(ext2 Extents3d) bool {
	if !ext.initialized || ext2.Empty() {
		return false
	}
	for dim := 0; dim < 3; dim++ {
		if ext.MaxPoint[dim] < ext2.MinPoint[dim] || ext.MinPoint[dim] > ext2.MaxPoint[dim] {
			return false
		}
	}
	return true
}

func (ext Extents3d) String() string {
	if !ext.initialized {
		return "[empty]"
	}
	return fmt.Sprintf("[%s, %s]", ext.MinPoint, ext.MaxPoint)
}
