/*
	Package undo implements a byte-budgeted, transactional undo/redo log for
	label volume editing.  Each logical operation becomes one action record
	holding the per-voxel previous scalars, any labels created during the
	operation, and snapshots of the color table and selected-label set taken
	when the operation began.

	The log owns two LIFO stacks plus at most one in-flight record.  Memory
	is bounded by a byte budget using a fixed-cost estimate per record part;
	when a new or growing record would exceed the budget, the oldest records
	are evicted first.  If the budget cannot fit even the in-flight record,
	it degrades to a "full" tombstone: the caller's edits keep landing on the
	volume but undo for that action is lost, which callers can observe via
	LostActions.
*/
package undo

import (
	"errors"
	"fmt"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxedit/labeltable"
	"github.com/janelia-flyem/voxedit/voxedit"
)

// Which selects one of the log's three record locations.
type Which uint8

const (
	UndoStack Which = iota
	RedoStack
	InFlight
)

// DefaultBudget bounds undo memory when a caller doesn't configure one.
const DefaultBudget = 64 << 20 // 64 MiB

// Per-part byte costs for the budget estimate.  These approximate the real
// in-memory footprint; the estimate just needs to be applied consistently so
// eviction keeps usage near the budget.
const (
	editRecordSize      = 20 // coordinate + previous scalar
	objectRecordSize    = 72 // label index + object entry
	colorEntrySize      = 4
	labelIDSize         = 4
	fixedActionOverhead = 96
)

// ErrNoAction is returned by Undo/Redo when the corresponding stack is empty
// and by replay entry points called without an action where one is required.
var ErrNoAction = errors.New("no action available")

// ErrActionFull is returned when a cancel cannot revert the volume because
// the in-flight record was evicted after exceeding the undo budget.
var ErrActionFull = errors.New("action exceeded undo budget; revert list was dropped")

type edit struct {
	pt   voxedit.Point3d
	prev uint64
}

// CreatedObject records a label allocated during an action so undo can
// remove it from the table and redo can reinsert it at the same index.
type CreatedObject struct {
	Index labeltable.LabelIndex
	Entry labeltable.ObjectEntry
}

type action struct {
	description string
	edits       []edit
	created     []CreatedObject
	colors      []labeltable.Color
	selected    map[labeltable.LabelIndex]struct{}

	// full marks a degraded record: its revert data was evicted to honor the
	// budget and only the description survives.
	full bool

	// usage is this record's accounted bytes under the estimate above.
	usage uint64
}

func (a *action) addUsage(n uint64) {
	a.usage += n
}

func snapshotUsage(desc string, colors []labeltable.Color, selected map[labeltable.LabelIndex]struct{}) uint64 {
	return fixedActionOverhead + uint64(len(desc)) +
		uint64(len(colors))*colorEntrySize + uint64(len(selected))*labelIDSize
}

// Log is a bounded undo/redo history.  It is not safe for concurrent use;
// the session serializes access under its edit lock.
type Log struct {
	undos    []*action
	redos    []*action
	inflight *action

	budget uint64
	usage  uint64 // accounted bytes over both stacks, excluding in-flight

	evictions   uint64
	lostActions uint64
}

// NewLog returns a log bounded by the given byte budget.  A zero budget
// disables undo entirely: every action goes full immediately.
func NewLog(budget uint64) *Log {
	return &Log{budget: budget}
}

// BeginAction opens a record for a new operation, capturing the color table
// and selected-set snapshots that undo will restore.  Any redoable actions
// are invalidated.  If the projected usage exceeds the budget, the oldest
// undo records are evicted until it fits; if the undo stack empties and the
// record still doesn't fit, the record goes full from the start.
func (l *Log) BeginAction(desc string, colors []labeltable.Color, selected map[labeltable.LabelIndex]struct{}) {
	if l.inflight != nil {
		voxedit.Criticalf("action %q begun while %q still in flight; dropping the old record\n",
			desc, l.inflight.description)
	}
	l.clearRedos()

	a := &action{
		description: desc,
		colors:      colors,
		selected:    selected,
		usage:       snapshotUsage(desc, colors, selected),
	}
	l.inflight = a
	l.fit(a, 0)
}

// fit evicts oldest undo records until the in-flight record plus its pending
// growth fits under the budget, degrading the record to full if eviction
// alone can't make room.
func (l *Log) fit(a *action, growth uint64) bool {
	for l.usage+a.usage+growth > l.budget && len(l.undos) > 0 {
		l.evictOldest(&l.undos)
	}
	if l.usage+a.usage+growth > l.budget {
		l.makeFull(a)
		return false
	}
	return true
}

// makeFull drops a record's revert data, keeping only the description so it
// can still be reported as the in-flight action.
func (l *Log) makeFull(a *action) {
	if a.full {
		return
	}
	voxedit.Errorf("undo record %q exceeds budget of %s; undo for this action is lost\n",
		a.description, humanize.Bytes(l.budget))
	a.full = true
	a.edits = nil
	a.created = nil
	a.colors = nil
	a.selected = nil
	a.usage = 0
	l.lostActions++
}

// RecordEdit appends one voxel's previous scalar to the in-flight record.
// Callers invoke this after every bookkeeping write; a full record ignores
// further edits.
func (l *Log) RecordEdit(pt voxedit.Point3d, prev uint64) {
	a := l.inflight
	if a == nil {
		voxedit.Criticalf("edit at %s recorded with no action in flight\n", pt)
		return
	}
	if a.full {
		return
	}
	if !l.fit(a, editRecordSize) {
		return
	}
	a.edits = append(a.edits, edit{pt, prev})
	a.addUsage(editRecordSize)
}

// RecordCreated notes a label allocated during the in-flight action.  The
// entry is captured at creation, before any voxels carry its scalar.
func (l *Log) RecordCreated(idx labeltable.LabelIndex, entry labeltable.ObjectEntry) {
	a := l.inflight
	if a == nil {
		voxedit.Criticalf("created label %d recorded with no action in flight\n", idx)
		return
	}
	if a.full {
		return
	}
	if !l.fit(a, objectRecordSize) {
		return
	}
	a.created = append(a.created, CreatedObject{Index: idx, Entry: entry})
	a.addUsage(objectRecordSize)
}

// EndAction closes the in-flight record, pushing it onto the undo stack.
// It reports whether the action can be undone: full records were already
// dropped, and records with no edits and no created labels are discarded
// rather than stacked.
func (l *Log) EndAction() (undoable bool) {
	a := l.inflight
	if a == nil {
		voxedit.Criticalf("action ended with none in flight\n")
		return false
	}
	l.inflight = nil
	if a.full {
		return false
	}
	if len(a.edits) == 0 && len(a.created) == 0 {
		return false
	}
	if voxedit.LogMode() == voxedit.DebugMode {
		voxedit.Debugf("undo record %q: %d edits, %d created, accounted %s, measured %s\n",
			a.description, len(a.edits), len(a.created),
			humanize.Bytes(a.usage), humanize.Bytes(uint64(size.Of(a))))
	}
	l.undos = append(l.undos, a)
	l.usage += a.usage
	return true
}

// CancelAction reverts the volume to its state before the in-flight action:
// edits are walked backwards, restoring each previous scalar through the raw
// write path, and any created labels are removed from the table.  Statistics
// were never merged for an open action, so none are adjusted here.
//
// A full record has no revert data, so cancel returns ErrActionFull and the
// caller must decide whether to keep the half-applied edits.
func (l *Log) CancelAction(t *labeltable.Table) error {
	a := l.inflight
	if a == nil {
		voxedit.Criticalf("action cancelled with none in flight\n")
		return ErrNoAction
	}
	l.inflight = nil
	if a.full {
		return ErrActionFull
	}
	for i := len(a.edits) - 1; i >= 0; i-- {
		t.SetVoxelRaw(a.edits[i].pt, a.edits[i].prev)
	}
	for i := len(a.created) - 1; i >= 0; i-- {
		if err := t.RemoveEntry(a.created[i].Index); err != nil {
			voxedit.Criticalf("cancel of %q: %v\n", a.description, err)
		}
	}
	return nil
}

// Undo reverts the most recent committed action and pushes its inverse onto
// the redo stack.
//
// Edits replay newest-first: the current scalar at each coordinate is read
// (becoming the redo edit for that coordinate) and the previous scalar is
// written through the raw path.  The same transitions are folded into an
// accumulator and merged so voxel counts and centroids track the reverted
// volume; bounding boxes only grow, as everywhere else.  Then the record's
// color table and selected-set snapshots are swapped with the live ones, and
// labels created by the action are removed from the table.
func (l *Log) Undo(t *labeltable.Table) error {
	if len(l.undos) == 0 {
		return ErrNoAction
	}
	a := l.undos[len(l.undos)-1]
	l.undos = l.undos[:len(l.undos)-1]
	l.usage -= a.usage

	inverse := l.replay(t, a)
	l.swapSnapshots(t, a, inverse)
	for i := len(a.created) - 1; i >= 0; i-- {
		if err := t.RemoveEntry(a.created[i].Index); err != nil {
			voxedit.Criticalf("undo of %q: %v\n", a.description, err)
		}
	}

	l.redos = append(l.redos, inverse)
	l.usage += inverse.usage
	return nil
}

// Redo reapplies the most recently undone action and pushes its inverse back
// onto the undo stack.  Labels removed by the undo are reinserted at their
// original indexes before the edits replay, so their statistics rebuild as
// the deltas merge.
func (l *Log) Redo(t *labeltable.Table) error {
	if len(l.redos) == 0 {
		return ErrNoAction
	}
	a := l.redos[len(l.redos)-1]
	l.redos = l.redos[:len(l.redos)-1]
	l.usage -= a.usage

	for _, c := range a.created {
		if err := t.ReinsertEntry(c.Index, c.Entry); err != nil {
			voxedit.Criticalf("redo of %q: %v\n", a.description, err)
		}
	}
	inverse := l.replay(t, a)
	l.swapSnapshots(t, a, inverse)

	l.undos = append(l.undos, inverse)
	l.usage += inverse.usage
	return nil
}

// replay walks a record's edits newest-first, restoring each previous scalar
// through the raw path while building the inverse record from the scalars
// read back.  The observed transitions are merged into the table so its
// statistics follow the replayed volume.
func (l *Log) replay(t *labeltable.Table, a *action) *action {
	inverse := &action{
		description: a.description,
		created:     a.created,
	}
	if len(a.edits) > 0 {
		inverse.edits = make([]edit, 0, len(a.edits))
		var acc labeltable.Accumulator
		acc.Start()
		for i := len(a.edits) - 1; i >= 0; i-- {
			pt, prev := a.edits[i].pt, a.edits[i].prev
			cur := t.VoxelScalar(pt)
			t.SetVoxelRaw(pt, prev)
			acc.Note(pt, cur, prev)
			inverse.edits = append(inverse.edits, edit{pt, cur})
		}
		acc.Commit(t)
	}
	return inverse
}

// swapSnapshots exchanges the record's color and selection snapshots with
// the live table state, storing what was live in the inverse record, and
// finishes the inverse record's accounting.
func (l *Log) swapSnapshots(t *labeltable.Table, a, inverse *action) {
	inverse.colors = t.SwapColors(a.colors)
	inverse.selected = t.SwapSelected(a.selected)
	inverse.usage = uint64(len(inverse.edits))*editRecordSize +
		uint64(len(inverse.created))*objectRecordSize +
		snapshotUsage(inverse.description, inverse.colors, inverse.selected)
}

// SetBudget rebounds the log.  If current usage exceeds the new budget, the
// oldest redo records are evicted first, then the oldest undo records.
func (l *Log) SetBudget(budget uint64) {
	l.budget = budget
	for l.usage > l.budget && len(l.redos) > 0 {
		l.evictOldest(&l.redos)
	}
	for l.usage > l.budget && len(l.undos) > 0 {
		l.evictOldest(&l.undos)
	}
}

// Budget returns the configured byte budget.
func (l *Log) Budget() uint64 {
	return l.budget
}

// Usage returns the accounted bytes across both stacks.
func (l *Log) Usage() uint64 {
	return l.usage
}

func (l *Log) evictOldest(stack *[]*action) {
	a := (*stack)[0]
	copy(*stack, (*stack)[1:])
	(*stack)[len(*stack)-1] = nil
	*stack = (*stack)[:len(*stack)-1]
	l.usage -= a.usage
	l.evictions++
	voxedit.Debugf("evicted undo record %q, freeing %s of %s budget\n",
		a.description, humanize.Bytes(a.usage), humanize.Bytes(l.budget))
}

func (l *Log) clearRedos() {
	for _, a := range l.redos {
		l.usage -= a.usage
	}
	l.redos = nil
}

// IsEmpty reports whether the given record location holds no action.
func (l *Log) IsEmpty(which Which) bool {
	switch which {
	case UndoStack:
		return len(l.undos) == 0
	case RedoStack:
		return len(l.redos) == 0
	case InFlight:
		return l.inflight == nil
	}
	return true
}

// Description returns the description of the newest record at the given
// location, or false if there is none.
func (l *Log) Description(which Which) (string, bool) {
	switch which {
	case UndoStack:
		if len(l.undos) > 0 {
			return l.undos[len(l.undos)-1].description, true
		}
	case RedoStack:
		if len(l.redos) > 0 {
			return l.redos[len(l.redos)-1].description, true
		}
	case InFlight:
		if l.inflight != nil {
			return l.inflight.description, true
		}
	}
	return "", false
}

// InFlightFull reports whether the in-flight action has gone full, i.e.,
// its revert data was dropped to honor the budget.
func (l *Log) InFlightFull() bool {
	return l.inflight != nil && l.inflight.full
}

// Stats describes the log for monitoring.
type Stats struct {
	NumUndo     int
	NumRedo     int
	UsageBytes  uint64
	BudgetBytes uint64
	Evictions   uint64
	LostActions uint64
}

// GetStats returns a snapshot of the log's counters.
func (l *Log) GetStats() Stats {
	return Stats{
		NumUndo:     len(l.undos),
		NumRedo:     len(l.redos),
		UsageBytes:  l.usage,
		BudgetBytes: l.budget,
		Evictions:   l.evictions,
		LostActions: l.lostActions,
	}
}

// String summarizes the log state for logs and debugging.
func (l *Log) String() string {
	return fmt.Sprintf("undo log: %d undoable, %d redoable, %s of %s used",
		len(l.undos), len(l.redos), humanize.Bytes(l.usage), humanize.Bytes(l.budget))
}
