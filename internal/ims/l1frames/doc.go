// Package l1frames owns Layer 1 (Frames) of the ion-mobility data model.
//
// Responsibilities: the raw acquisition structure (frames made of
// mobility scans made of detected signals), data points handed to the
// trace layers, and loading raw files from disk.
// Key types: Frame, MobilityScan, Signal, DataPoint, RawFile.
//
// Dependency rule: L1 depends on nothing else in internal/ims.
package l1frames
