/*
Package voxedit provides the shared primitives for the voxedit segmentation
editing core: voxel coordinates and real-valued vectors, grow-only extents,
logging, and serialization of session state.

The editing core proper is split across packages that build on these
primitives: labelgrid holds the dense voxel label field, labeltable maintains
per-object statistics and the color table, undo implements the byte-budgeted
undo/redo log, and session ties them together under a single edit lock.
*/
package voxedit
