// Package l2traces owns Layer 2 (Traces) of the ion-mobility data model.
//
// Responsibilities: accumulating data points of one candidate trace with
// one point per mobility scan, running m/z statistics, best-fit conflict
// resolution, and flattening into an output series.
// Key types: Accumulator, Series, Resolution.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2traces
