// Package ims groups the ion-mobility data model used by the mobility
// expansion service.
//
// Layers, lowest first:
//
//	l1frames   - frames, mobility scans, signals, data points, raw files
//	l2traces   - trace accumulator (one mobilogram under construction)
//	l3expand   - expanding traces, partitioning, frame scan workers
//	l4features - rows, features, feature lists, ion mobilogram series
//	pipeline   - expansion coordinator
//
// Dependency rule: a layer may depend on lower layers only. No SQL is
// allowed below storage/sqlite.
package ims
