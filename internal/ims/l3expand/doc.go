// Package l3expand owns Layer 3 (Expansion) of the ion-mobility data model.
//
// Responsibilities: m/z acceptance windows, expanding traces bound to one
// candidate row each, partitioning traces across workers, and the frame
// scan worker that streams every frame through its own traces.
// Key types: ExpandingTrace, Worker, Range, MZTolerance.
//
// Work is partitioned by trace rather than by frame. Each worker walks
// frames in acquisition order, so points reach a trace by increasing scan
// index and no merge step is needed afterwards.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3expand
