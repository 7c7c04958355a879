/*
	Package session ties the editing core together: the voxel field and its
	label table, the per-operation accumulator, and the undo/redo log, plus
	the optional services around them (mutation journal, autosave store,
	slice cache, metrics, Arrow export).

	A session has exactly one logical editing context.  All methods except
	those documented as background-safe must be called from that context,
	which also means Undo, Redo, and the bracket calls never overlap.  An
	operation bracket (OperationStart through OperationEnd or
	OperationCancel) holds the session's edit lock for its whole span, so
	background work like WriteSnapshot or SliceXY blocks until the bracket
	closes and always observes a consistent volume.
*/
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxedit/labelgrid"
	"github.com/janelia-flyem/voxedit/labeltable"
	"github.com/janelia-flyem/voxedit/undo"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// Session is an in-memory editing session over one label volume.
type Session struct {
	id          string
	seq         uint64 // operation sequence for journal records
	autosaveSeq uint64 // autosave sequence for store keys

	// editMu is the single mutating context: held for the span of each
	// operation bracket and for each undo/redo, and taken by background
	// readers (snapshot, export, slice extraction) for their duration.
	editMu sync.Mutex

	table *labeltable.Table
	acc   labeltable.Accumulator
	log   *undo.Log

	journal *Journal
	cache   *SliceCache
	saver   *Autosaver

	inOp         bool
	lastUndoable bool

	// statsMu guards the undo log stats mirror read by the metrics
	// collector, so scrapes don't contend with open brackets.
	statsMu  sync.Mutex
	logStats undo.Stats

	numLabels    int64 // mirror of table.NumLabels for lock-free scrapes
	numCommitted uint64
	numCancelled uint64
	numUndos     uint64
	numRedos     uint64
}

// New creates a session over a fresh all-background volume of the given
// dimensions.  A nil config uses defaults: the stock undo budget and no
// journal, autosave, or slice cache.
func New(size voxedit.Point3d, cfg *Config) (*Session, error) {
	grid, err := labelgrid.NewGrid(size)
	if err != nil {
		return nil, err
	}
	return newSession(labeltable.NewTable(grid), cfg, "")
}

// NewFromGrid creates a session over an imported volume, scanning it once to
// build the label table.
func NewFromGrid(grid *labelgrid.Grid, cfg *Config) (*Session, error) {
	table, err := labeltable.BuildFromGrid(grid)
	if err != nil {
		return nil, err
	}
	return newSession(table, cfg, "")
}

func newSession(table *labeltable.Table, cfg *Config, id string) (*Session, error) {
	if id == "" {
		id = fmt.Sprintf("%x", uuid.NewV4().Bytes())
	}
	s := &Session{
		id:    id,
		table: table,
		log:   undo.NewLog(cfg.undoBudget()),
	}
	if cfg != nil {
		if cfg.Journal.Directory != "" {
			journal, err := openJournal(cfg.Journal.Directory, s.id)
			if err != nil {
				return nil, fmt.Errorf("can't open session journal: %v", err)
			}
			s.journal = journal
		}
		if cfg.Autosave.Path != "" {
			saver, err := openAutosaver(cfg.Autosave.Path, cfg.Autosave.Keep)
			if err != nil {
				return nil, fmt.Errorf("can't open autosave store: %v", err)
			}
			s.saver = saver
		}
		if cfg.Editor.SliceCacheMB > 0 {
			s.cache = newSliceCache(cfg.Editor.SliceCacheMB)
		}
	}
	s.cacheLogStats()
	size := table.GridSize()
	voxedit.Infof("session %s opened: %s volume, %d labels, undo budget %d bytes\n",
		s.id, size, table.NumLabels(), s.log.Budget())
	return s, nil
}

// ID returns the session's unique hex identifier.
func (s *Session) ID() string {
	return s.id
}

// Close releases the session's journal and autosave store.  The in-memory
// volume and tables remain readable.
func (s *Session) Close() error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	var firstErr error
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			firstErr = err
		}
		s.journal = nil
	}
	if s.saver != nil {
		if err := s.saver.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.saver = nil
	}
	return firstErr
}

// OperationStart opens an operation bracket: the accumulator starts
// recording, the undo log opens an action record, and the edit lock is held
// until OperationEnd or OperationCancel.  The description names the user
// gesture, e.g. "paint brush stroke".
func (s *Session) OperationStart(desc string) error {
	s.editMu.Lock()
	if s.inOp {
		s.editMu.Unlock()
		return fmt.Errorf("operation %q started inside another operation", desc)
	}
	s.inOp = true
	s.acc.Start()
	s.log.BeginAction(desc, s.table.Colors(), s.table.SelectedSet())
	s.cacheLogStats()
	return nil
}

// SetVoxelScalar writes one voxel inside an open bracket.  The write lands
// on the volume immediately; statistics are deferred to OperationEnd via the
// accumulator, and the previous scalar is recorded for undo.  The voxel
// write path reports no errors: callers are trusted to stay in bounds and
// inside a bracket, and violations surface in the critical log.
func (s *Session) SetVoxelScalar(pt voxedit.Point3d, scalar uint64) {
	if !s.inOp {
		voxedit.Criticalf("voxel write at %s outside an operation bracket\n", pt)
		return
	}
	old := s.table.SetVoxel(pt, scalar)
	if old == scalar {
		return
	}
	s.acc.Note(pt, old, scalar)
	s.log.RecordEdit(pt, old)
}

// AllocateLabel creates a new object entry with an unused scalar and the
// given display color, recording the creation in the open action so undo
// can discard it.  Exhausting the label space is the one editing failure a
// caller must handle.
func (s *Session) AllocateLabel(color labeltable.Color) (labeltable.LabelIndex, error) {
	if !s.inOp {
		return 0, fmt.Errorf("label allocation outside an operation bracket")
	}
	idx, err := s.table.AllocateLabel(color)
	if err != nil {
		return 0, err
	}
	entry, _ := s.table.Entry(idx)
	s.log.RecordCreated(idx, entry)
	return idx, nil
}

// EnsureLabel returns the label index for a caller-chosen scalar, creating
// an entry with the given color if the scalar is new.  Creation is recorded
// in the open action just like AllocateLabel.
func (s *Session) EnsureLabel(scalar uint64, color labeltable.Color) (labeltable.LabelIndex, error) {
	if !s.inOp {
		return 0, fmt.Errorf("label creation outside an operation bracket")
	}
	idx, created, err := s.table.EnsureLabel(scalar, color)
	if err != nil {
		return 0, err
	}
	if created {
		entry, _ := s.table.Entry(idx)
		s.log.RecordCreated(idx, entry)
	}
	return idx, nil
}

// OperationEnd commits the open bracket: accumulated deltas merge into the
// table, the action record is pushed for undo, affected cached slices are
// invalidated, and the edit lock is released.
func (s *Session) OperationEnd() error {
	if !s.inOp {
		voxedit.Criticalf("operation end with no operation in flight\n")
		return fmt.Errorf("no operation in flight")
	}
	desc, _ := s.log.Description(undo.InFlight)
	touched := s.acc.TouchedExtent()
	s.acc.Commit(s.table)
	s.lastUndoable = s.log.EndAction()
	s.cache.invalidateExtent(touched)
	s.journalAction("commit", desc, touched)
	s.cacheLogStats()
	atomic.AddUint64(&s.numCommitted, 1)
	s.inOp = false
	s.editMu.Unlock()
	return nil
}

// OperationCancel aborts the open bracket, reverting every voxel written
// since OperationStart and removing any labels it allocated.  Accumulated
// deltas are discarded unmerged.
//
// If the action outgrew the undo budget its revert list is gone; the edits
// then stay on the volume and the deltas are merged anyway so statistics
// remain truthful, and ErrCancelLost reports the failure to the caller.
func (s *Session) OperationCancel() error {
	if !s.inOp {
		voxedit.Criticalf("operation cancel with no operation in flight\n")
		return fmt.Errorf("no operation in flight")
	}
	desc, _ := s.log.Description(undo.InFlight)
	touched := s.acc.TouchedExtent()
	err := s.log.CancelAction(s.table)
	switch err {
	case nil:
		s.acc.Cancel()
	case undo.ErrActionFull:
		voxedit.Criticalf("cancel cannot revert: %v; keeping edits with merged statistics\n", err)
		s.acc.Commit(s.table)
		s.cache.invalidateExtent(touched)
		err = ErrCancelLost
	default:
		s.acc.Cancel()
	}
	s.journalAction("cancel", desc, touched)
	s.cacheLogStats()
	atomic.AddUint64(&s.numCancelled, 1)
	s.lastUndoable = false
	s.inOp = false
	s.editMu.Unlock()
	return err
}

// ErrCancelLost reports a cancel that could not revert the volume because
// the action's revert data was evicted to honor the undo budget.
var ErrCancelLost = fmt.Errorf("cancel unavailable: %w", undo.ErrActionFull)

// Undo reverts the most recent committed operation.  Must not be called
// inside a bracket.
func (s *Session) Undo() error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	desc, _ := s.log.Description(undo.UndoStack)
	if err := s.log.Undo(s.table); err != nil {
		return err
	}
	s.cache.clear()
	s.journalAction("undo", desc, voxedit.Extents3d{})
	s.cacheLogStats()
	atomic.AddUint64(&s.numUndos, 1)
	return nil
}

// Redo reapplies the most recently undone operation.  Must not be called
// inside a bracket.
func (s *Session) Redo() error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	desc, _ := s.log.Description(undo.RedoStack)
	if err := s.log.Redo(s.table); err != nil {
		return err
	}
	s.cache.clear()
	s.journalAction("redo", desc, voxedit.Extents3d{})
	s.cacheLogStats()
	atomic.AddUint64(&s.numRedos, 1)
	return nil
}

// CanUndo reports whether an operation is available to undo.
func (s *Session) CanUndo() bool {
	return !s.log.IsEmpty(undo.UndoStack)
}

// CanRedo reports whether an undone operation is available to redo.
func (s *Session) CanRedo() bool {
	return !s.log.IsEmpty(undo.RedoStack)
}

// UndoDescription returns the description of the operation Undo would
// revert.
func (s *Session) UndoDescription() (string, bool) {
	return s.log.Description(undo.UndoStack)
}

// RedoDescription returns the description of the operation Redo would
// reapply.
func (s *Session) RedoDescription() (string, bool) {
	return s.log.Description(undo.RedoStack)
}

// CurrentDescription returns the description of the open bracket, if any.
func (s *Session) CurrentDescription() (string, bool) {
	return s.log.Description(undo.InFlight)
}

// LastUndoable reports whether the most recently committed operation kept
// its undo record, letting a caller warn when an oversized action lost its
// undo.
func (s *Session) LastUndoable() bool {
	return s.lastUndoable
}

// SetUndoBudget rebounds undo memory, evicting oldest redo then undo
// records as needed.  Must not be called inside a bracket.
func (s *Session) SetUndoBudget(bytes uint64) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	s.log.SetBudget(bytes)
	s.cacheLogStats()
}

func (s *Session) cacheLogStats() {
	stats := s.log.GetStats()
	s.statsMu.Lock()
	s.logStats = stats
	s.statsMu.Unlock()
	atomic.StoreInt64(&s.numLabels, int64(s.table.NumLabels()))
}

// LogStats returns the undo log's counters as of the last operation.
// Background-safe.
func (s *Session) LogStats() undo.Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.logStats
}

// GridSize returns the volume dimensions.
func (s *Session) GridSize() voxedit.Point3d {
	return s.table.GridSize()
}

// VoxelScalar returns the scalar at a voxel.
func (s *Session) VoxelScalar(pt voxedit.Point3d) uint64 {
	return s.table.VoxelScalar(pt)
}

// NumLabels returns the object count including background.
func (s *Session) NumLabels() int {
	return s.table.NumLabels()
}

// Entry returns a copy of an object's statistics.
func (s *Session) Entry(idx labeltable.LabelIndex) (labeltable.ObjectEntry, bool) {
	return s.table.Entry(idx)
}

// IndexOfScalar maps a raw scalar to its dense label index.
func (s *Session) IndexOfScalar(scalar uint64) (labeltable.LabelIndex, bool) {
	return s.table.IndexOfScalar(scalar)
}

// Color returns the display color for a label.
func (s *Session) Color(idx labeltable.LabelIndex) (labeltable.Color, bool) {
	return s.table.Color(idx)
}

// Colors returns a copy of the color table.
func (s *Session) Colors() []labeltable.Color {
	return s.table.Colors()
}

// Selected returns the selected label indexes in ascending order.
func (s *Session) Selected() []labeltable.LabelIndex {
	return s.table.Selected()
}

// IsSelected reports whether a label is selected.
func (s *Session) IsSelected(idx labeltable.LabelIndex) bool {
	return s.table.IsSelected(idx)
}

// Highlight makes a label opaque and selects it.  Color and selection
// changes ride on the next operation's undo record rather than forming
// actions of their own.
func (s *Session) Highlight(idx labeltable.LabelIndex) {
	s.table.Highlight(idx)
}

// Dim deselects a label and restores its translucent alpha.
func (s *Session) Dim(idx labeltable.LabelIndex) {
	s.table.Dim(idx)
}

// HighlightExclusive dims every label, then highlights and selects just the
// given one.
func (s *Session) HighlightExclusive(idx labeltable.LabelIndex) {
	s.table.HighlightExclusive(idx)
}

// DimAll dims every label and clears the selection.
func (s *Session) DimAll() {
	s.table.DimAll()
}

func (s *Session) journalAction(op, desc string, touched voxedit.Extents3d) {
	if s.journal == nil {
		return
	}
	s.seq++
	if err := s.journal.logAction(s.seq, op, desc, touched); err != nil {
		voxedit.Errorf("session %s journal write failed: %v\n", s.id, err)
	}
}

// Stats summarizes session activity for monitoring.
type Stats struct {
	Committed uint64
	Cancelled uint64
	Undos     uint64
	Redos     uint64
}

// GetStats returns the session's operation counters.  Background-safe.
func (s *Session) GetStats() Stats {
	return Stats{
		Committed: atomic.LoadUint64(&s.numCommitted),
		Cancelled: atomic.LoadUint64(&s.numCancelled),
		Undos:     atomic.LoadUint64(&s.numUndos),
		Redos:     atomic.LoadUint64(&s.numRedos),
	}
}
