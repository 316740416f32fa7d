// Package pipeline coordinates a mobility expansion run.
//
// Responsibilities: precondition checks, building one expanding trace per
// row, partitioning traces across frame scan workers, joining the workers,
// and aggregating the finished traces into a new feature list.
// Key types: Expander, Pool, GroupPool, Status, RunState.
//
// A run is all-or-nothing: when any worker fails or the run is canceled,
// no feature list is produced.
//
// Dependency rule: pipeline may depend on L1-L4, config, monitoring and
// timeutil, but never on storage.
package pipeline
