package session

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/janelia-flyem/voxedit/labeltable"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// objectSchema is the Arrow layout for an exported object table, one row
// per label including background.
var objectSchema = arrow.NewSchema([]arrow.Field{
	{Name: "label_index", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "scalar", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "num_voxels", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "centroid_x", Type: arrow.PrimitiveTypes.Float64},
	{Name: "centroid_y", Type: arrow.PrimitiveTypes.Float64},
	{Name: "centroid_z", Type: arrow.PrimitiveTypes.Float64},
	{Name: "bbox_min_x", Type: arrow.PrimitiveTypes.Int32},
	{Name: "bbox_min_y", Type: arrow.PrimitiveTypes.Int32},
	{Name: "bbox_min_z", Type: arrow.PrimitiveTypes.Int32},
	{Name: "bbox_max_x", Type: arrow.PrimitiveTypes.Int32},
	{Name: "bbox_max_y", Type: arrow.PrimitiveTypes.Int32},
	{Name: "bbox_max_z", Type: arrow.PrimitiveTypes.Int32},
	{Name: "rgba", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "selected", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// ExportObjectsArrow writes the object table as one Arrow IPC record batch,
// for analysis tooling downstream of an editing session.  Background-safe.
func (s *Session) ExportObjectsArrow(w io.Writer) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	pool := memory.NewGoAllocator()
	writer := ipc.NewWriter(w, ipc.WithSchema(objectSchema))

	indexBuilder := array.NewUint32Builder(pool)
	scalarBuilder := array.NewUint64Builder(pool)
	countBuilder := array.NewUint64Builder(pool)
	cxBuilder := array.NewFloat64Builder(pool)
	cyBuilder := array.NewFloat64Builder(pool)
	czBuilder := array.NewFloat64Builder(pool)
	minxBuilder := array.NewInt32Builder(pool)
	minyBuilder := array.NewInt32Builder(pool)
	minzBuilder := array.NewInt32Builder(pool)
	maxxBuilder := array.NewInt32Builder(pool)
	maxyBuilder := array.NewInt32Builder(pool)
	maxzBuilder := array.NewInt32Builder(pool)
	rgbaBuilder := array.NewUint32Builder(pool)
	selectedBuilder := array.NewBooleanBuilder(pool)

	defer func() {
		indexBuilder.Release()
		scalarBuilder.Release()
		countBuilder.Release()
		cxBuilder.Release()
		cyBuilder.Release()
		czBuilder.Release()
		minxBuilder.Release()
		minyBuilder.Release()
		minzBuilder.Release()
		maxxBuilder.Release()
		maxyBuilder.Release()
		maxzBuilder.Release()
		rgbaBuilder.Release()
		selectedBuilder.Release()
	}()

	numLabels := s.table.NumLabels()
	for i := 0; i < numLabels; i++ {
		idx := labeltable.LabelIndex(i)
		entry, _ := s.table.Entry(idx)
		color, _ := s.table.Color(idx)

		indexBuilder.Append(uint32(idx))
		scalarBuilder.Append(entry.Scalar)
		countBuilder.Append(entry.VoxelCount)
		cxBuilder.Append(entry.Centroid[0])
		cyBuilder.Append(entry.Centroid[1])
		czBuilder.Append(entry.Centroid[2])
		minxBuilder.Append(entry.BBoxMin[0])
		minyBuilder.Append(entry.BBoxMin[1])
		minzBuilder.Append(entry.BBoxMin[2])
		maxxBuilder.Append(entry.BBoxMax[0])
		maxyBuilder.Append(entry.BBoxMax[1])
		maxzBuilder.Append(entry.BBoxMax[2])
		rgbaBuilder.Append(uint32(color[0])<<24 | uint32(color[1])<<16 | uint32(color[2])<<8 | uint32(color[3]))
		selectedBuilder.Append(s.table.IsSelected(idx))
	}

	arrays := []arrow.Array{
		indexBuilder.NewArray(),
		scalarBuilder.NewArray(),
		countBuilder.NewArray(),
		cxBuilder.NewArray(),
		cyBuilder.NewArray(),
		czBuilder.NewArray(),
		minxBuilder.NewArray(),
		minyBuilder.NewArray(),
		minzBuilder.NewArray(),
		maxxBuilder.NewArray(),
		maxyBuilder.NewArray(),
		maxzBuilder.NewArray(),
		rgbaBuilder.NewArray(),
		selectedBuilder.NewArray(),
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	record := array.NewRecord(objectSchema, arrays, int64(numLabels))
	defer record.Release()

	if err := writer.Write(record); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// ExportObjectsArrowFile writes the object table to an Arrow IPC file.
// Background-safe.
func (s *Session) ExportObjectsArrowFile(path string) error {
	tlog := voxedit.NewTimeLog()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.ExportObjectsArrow(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	tlog.Infof("Exported %d object entries from session %s to %s", atomic.LoadInt64(&s.numLabels), s.id, path)
	return nil
}
